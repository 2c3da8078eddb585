package pager

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/hupe1980/docbase/model"
)

const (
	magicSnapshot   = 0x44425047 // "DBPG"
	versionSnapshot = 1
)

// Save writes a point-in-time snapshot of the whole page table. The
// caller must ensure no writer commits while the snapshot runs.
func (p *Pager) Save(w io.Writer) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bw := bufio.NewWriter(w)

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:4], magicSnapshot)
	binary.LittleEndian.PutUint32(header[4:8], versionSnapshot)
	binary.LittleEndian.PutUint32(header[8:12], uint32(p.next))
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if _, err := p.free.WriteTo(bw); err != nil {
		return fmt.Errorf("pager: write free list: %w", err)
	}

	live := make([]Page, 0, len(p.pages))
	for _, page := range p.pages {
		if page.Type() != PageEmpty {
			live = append(live, page)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID() < live[j].ID() })

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(live))); err != nil {
		return err
	}
	for _, page := range live {
		if err := binary.Write(bw, binary.LittleEndian, uint32(page.ID())); err != nil {
			return err
		}
		if err := bw.WriteByte(byte(page.Type())); err != nil {
			return err
		}
		var err error
		switch pg := page.(type) {
		case *HeaderPage:
			err = writeHeaderPage(bw, pg)
		case *CollectionPage:
			err = writeCollectionPage(bw, pg)
		case *IndexPage:
			err = writeIndexPage(bw, pg)
		case *DataPage:
			err = writeDataPage(bw, pg)
		default:
			err = fmt.Errorf("pager: cannot snapshot %s page %d", page.Type(), page.ID())
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load restores a pager from a snapshot written by Save.
func Load(r io.Reader) (*Pager, error) {
	br := bufio.NewReader(r)

	var header [12]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, err
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != magicSnapshot {
		return nil, fmt.Errorf("pager: invalid snapshot magic %#x", magic)
	}
	if ver := binary.LittleEndian.Uint32(header[4:8]); ver != versionSnapshot {
		return nil, fmt.Errorf("pager: unsupported snapshot version %d", ver)
	}

	p := &Pager{
		pages: make(map[model.PageID]Page),
		free:  roaring64.New(),
		next:  model.PageID(binary.LittleEndian.Uint32(header[8:12])),
	}
	if _, err := p.free.ReadFrom(br); err != nil {
		return nil, fmt.Errorf("pager: read free list: %w", err)
	}

	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		var rawID uint32
		if err := binary.Read(br, binary.LittleEndian, &rawID); err != nil {
			return nil, err
		}
		typ, err := br.ReadByte()
		if err != nil {
			return nil, err
		}

		id := model.PageID(rawID)
		var page Page
		switch PageType(typ) {
		case PageHeader:
			page, err = readHeaderPage(br)
		case PageCollection:
			page, err = readCollectionPage(br, id)
		case PageIndex:
			page, err = readIndexPage(br, id)
		case PageData:
			page, err = readDataPage(br, id)
		default:
			err = fmt.Errorf("pager: unknown page type %d for page %d", typ, id)
		}
		if err != nil {
			return nil, err
		}
		p.pages[id] = page
	}

	// Free list entries become empty markers so Get rejects them.
	it := p.free.Iterator()
	for it.HasNext() {
		id := model.PageID(it.Next())
		if _, ok := p.pages[id]; !ok {
			p.pages[id] = NewEmptyPage(id)
		}
	}

	if _, ok := p.pages[model.ZeroPageID]; !ok {
		return nil, fmt.Errorf("pager: snapshot carries no header page")
	}
	return p, nil
}

func writeHeaderPage(w *bufio.Writer, p *HeaderPage) error {
	names := p.Names()
	sort.Strings(names)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		id, _ := p.Get(name)
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(id)); err != nil {
			return err
		}
	}
	return nil
}

func readHeaderPage(r *bufio.Reader) (*HeaderPage, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	p := NewHeaderPage()
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		p.Add(name, model.PageID(id))
	}
	return p, nil
}

func writeCollectionPage(w *bufio.Writer, p *CollectionPage) error {
	if err := writeString(w, p.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, p.Sequence); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(p.FreeIndexPage)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(p.FreeDataPage)); err != nil {
		return err
	}
	if err := w.WriteByte(uint8(len(p.Indexes))); err != nil {
		return err
	}
	for _, idx := range p.Indexes {
		if err := writeString(w, idx.Name); err != nil {
			return err
		}
		if err := writeString(w, idx.Expression); err != nil {
			return err
		}
		if err := writeBool(w, idx.Unique); err != nil {
			return err
		}
		if err := w.WriteByte(idx.Slot); err != nil {
			return err
		}
		if err := writeLocation(w, idx.Head); err != nil {
			return err
		}
		if err := writeLocation(w, idx.Tail); err != nil {
			return err
		}
	}
	return nil
}

func readCollectionPage(r *bufio.Reader, id model.PageID) (*CollectionPage, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	p := NewCollectionPage(id, name)
	if err := binary.Read(r, binary.LittleEndian, &p.Sequence); err != nil {
		return nil, err
	}
	var freeIndex, freeData uint32
	if err := binary.Read(r, binary.LittleEndian, &freeIndex); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &freeData); err != nil {
		return nil, err
	}
	p.FreeIndexPage = model.PageID(freeIndex)
	p.FreeDataPage = model.PageID(freeData)

	count, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	for i := byte(0); i < count; i++ {
		idx := &IndexDescriptor{}
		if idx.Name, err = readString(r); err != nil {
			return nil, err
		}
		if idx.Expression, err = readString(r); err != nil {
			return nil, err
		}
		if idx.Unique, err = readBool(r); err != nil {
			return nil, err
		}
		if idx.Slot, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if idx.Head, err = readLocation(r); err != nil {
			return nil, err
		}
		if idx.Tail, err = readLocation(r); err != nil {
			return nil, err
		}
		p.Indexes = append(p.Indexes, idx)
	}
	return p, nil
}

func writeIndexPage(w *bufio.Writer, p *IndexPage) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(p.nodes))); err != nil {
		return err
	}
	for slot := uint16(0); slot < SlotsPerPage; slot++ {
		node, ok := p.nodes[slot]
		if !ok {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, slot); err != nil {
			return err
		}
		if err := writeValue(w, node.Key); err != nil {
			return err
		}
		if err := writeLocation(w, node.Data); err != nil {
			return err
		}
		if err := writeLocation(w, node.Back); err != nil {
			return err
		}
		if err := w.WriteByte(uint8(node.Levels())); err != nil {
			return err
		}
		for l := 0; l < node.Levels(); l++ {
			if err := writeLocation(w, node.Next[l]); err != nil {
				return err
			}
			if err := writeLocation(w, node.Prev[l]); err != nil {
				return err
			}
		}
	}
	return nil
}

func readIndexPage(r *bufio.Reader, id model.PageID) (*IndexPage, error) {
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	p := NewIndexPage(id)
	for i := uint16(0); i < count; i++ {
		var slot uint16
		if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
			return nil, err
		}
		node := &IndexNode{}
		var err error
		if node.Key, err = readValue(r); err != nil {
			return nil, err
		}
		if node.Data, err = readLocation(r); err != nil {
			return nil, err
		}
		if node.Back, err = readLocation(r); err != nil {
			return nil, err
		}
		levels, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		node.Next = make([]model.Location, levels)
		node.Prev = make([]model.Location, levels)
		for l := byte(0); l < levels; l++ {
			if node.Next[l], err = readLocation(r); err != nil {
				return nil, err
			}
			if node.Prev[l], err = readLocation(r); err != nil {
				return nil, err
			}
		}
		p.nodes[slot] = node
		p.used.Set(uint(slot))
	}
	return p, nil
}

func writeDataPage(w *bufio.Writer, p *DataPage) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(p.blocks))); err != nil {
		return err
	}
	for slot := uint16(0); slot < SlotsPerPage; slot++ {
		block, ok := p.blocks[slot]
		if !ok {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, slot); err != nil {
			return err
		}
		if err := writeBytes(w, block.Data); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(block.Overflow)); err != nil {
			return err
		}
	}
	return nil
}

func readDataPage(r *bufio.Reader, id model.PageID) (*DataPage, error) {
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	p := NewDataPage(id)
	for i := uint16(0); i < count; i++ {
		var slot uint16
		if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
			return nil, err
		}
		data, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		var overflow uint32
		if err := binary.Read(r, binary.LittleEndian, &overflow); err != nil {
			return nil, err
		}
		p.blocks[slot] = &DataBlock{Data: data, Overflow: model.PageID(overflow)}
		p.used.Set(uint(slot))
		p.bytes += len(data)
	}
	return p, nil
}

func writeLocation(w *bufio.Writer, loc model.Location) error {
	var buf [6]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(loc.Page))
	binary.LittleEndian.PutUint16(buf[4:6], loc.Slot)
	_, err := w.Write(buf[:])
	return err
}

func readLocation(r *bufio.Reader) (model.Location, error) {
	var buf [6]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return model.Location{}, err
	}
	return model.Location{
		Page: model.PageID(binary.LittleEndian.Uint32(buf[0:4])),
		Slot: binary.LittleEndian.Uint16(buf[4:6]),
	}, nil
}

func writeValue(w *bufio.Writer, v model.Value) error {
	if err := w.WriteByte(byte(v.Type())); err != nil {
		return err
	}
	switch v.Type() {
	case model.TypeMinValue, model.TypeNull, model.TypeMaxValue:
		return nil
	case model.TypeInt32:
		n, _ := v.Int()
		return binary.Write(w, binary.LittleEndian, int32(n))
	case model.TypeInt64:
		n, _ := v.Int()
		return binary.Write(w, binary.LittleEndian, n)
	case model.TypeDouble:
		f, _ := v.Float()
		return binary.Write(w, binary.LittleEndian, math.Float64bits(f))
	case model.TypeString:
		s, _ := v.Str()
		return writeString(w, s)
	case model.TypeBinary:
		b, _ := v.Bytes()
		return writeBytes(w, b)
	case model.TypeObjectID:
		oid, _ := v.OID()
		_, err := w.Write(oid.Bytes())
		return err
	case model.TypeGUID:
		gid, _ := v.UUID()
		_, err := w.Write(gid[:])
		return err
	case model.TypeBool:
		b, _ := v.Boolean()
		return writeBool(w, b)
	case model.TypeDateTime:
		tm, _ := v.Time()
		return binary.Write(w, binary.LittleEndian, tm.UnixMilli())
	case model.TypeArray:
		items, _ := v.Items()
		if err := binary.Write(w, binary.LittleEndian, uint32(len(items))); err != nil {
			return err
		}
		for _, item := range items {
			if err := writeValue(w, item); err != nil {
				return err
			}
		}
		return nil
	case model.TypeDocument:
		doc, _ := v.Document()
		keys := make([]string, 0, len(doc))
		for k := range doc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(keys))); err != nil {
			return err
		}
		for _, k := range keys {
			if err := writeString(w, k); err != nil {
				return err
			}
			if err := writeValue(w, doc[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("pager: cannot snapshot value of type %s", v.Type())
	}
}

func readValue(r *bufio.Reader) (model.Value, error) {
	typ, err := r.ReadByte()
	if err != nil {
		return model.Value{}, err
	}
	switch model.Type(typ) {
	case model.TypeMinValue:
		return model.MinValue(), nil
	case model.TypeNull:
		return model.Null(), nil
	case model.TypeMaxValue:
		return model.MaxValue(), nil
	case model.TypeInt32:
		var n int32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return model.Value{}, err
		}
		return model.Int32(n), nil
	case model.TypeInt64:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return model.Value{}, err
		}
		return model.Int64(n), nil
	case model.TypeDouble:
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return model.Value{}, err
		}
		return model.Double(math.Float64frombits(bits)), nil
	case model.TypeString:
		s, err := readString(r)
		if err != nil {
			return model.Value{}, err
		}
		return model.String(s), nil
	case model.TypeBinary:
		b, err := readBytes(r)
		if err != nil {
			return model.Value{}, err
		}
		return model.Binary(b), nil
	case model.TypeObjectID:
		var raw [12]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return model.Value{}, err
		}
		oid, err := xid.FromBytes(raw[:])
		if err != nil {
			return model.Value{}, err
		}
		return model.ObjectID(oid), nil
	case model.TypeGUID:
		var raw [16]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return model.Value{}, err
		}
		return model.GUID(uuid.UUID(raw)), nil
	case model.TypeBool:
		b, err := readBool(r)
		if err != nil {
			return model.Value{}, err
		}
		return model.Bool(b), nil
	case model.TypeDateTime:
		var ms int64
		if err := binary.Read(r, binary.LittleEndian, &ms); err != nil {
			return model.Value{}, err
		}
		return model.DateTime(time.UnixMilli(ms).UTC()), nil
	case model.TypeArray:
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return model.Value{}, err
		}
		items := make([]model.Value, count)
		for i := range items {
			if items[i], err = readValue(r); err != nil {
				return model.Value{}, err
			}
		}
		return model.Array(items...), nil
	case model.TypeDocument:
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return model.Value{}, err
		}
		doc := make(model.Document, count)
		for i := uint32(0); i < count; i++ {
			k, err := readString(r)
			if err != nil {
				return model.Value{}, err
			}
			v, err := readValue(r)
			if err != nil {
				return model.Value{}, err
			}
			doc[k] = v
		}
		return model.Doc(doc), nil
	default:
		return model.Value{}, fmt.Errorf("pager: unknown value type %d in snapshot", typ)
	}
}

func writeString(w *bufio.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeBool(w *bufio.Writer, b bool) error {
	if b {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

func readBool(r *bufio.Reader) (bool, error) {
	b, err := r.ReadByte()
	return b == 1, err
}
