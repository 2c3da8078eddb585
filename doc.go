// Package docbase provides an embedded document database for Go.
//
// Docbase stores schemaless documents in named collections backed by
// copy-on-write pages. Every document carries a unique identity under
// the "_id" field, indexed by a skip list; secondary indexes over key
// expressions (including array fan-out like "$.tags[*]") keep lookups
// fast without a schema.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := docbase.Open(ctx, docbase.WithCheckpointPath("./data"))
//	defer db.Close()
//
//	id, _ := db.InsertOne(ctx, "orders", model.Document{
//	    "customer": model.String("acme"),
//	    "total":    model.Double(99.95),
//	})
//
//	doc, _ := db.FindByID(ctx, "orders", id)
//
// # Writes
//
// Insert and Upsert take a batch of documents and apply it atomically:
// either every document lands or none does. Documents without an
// identity get one synthesized per the configured auto-id type
// (ObjectID by default):
//
//	n, _ := db.Insert(ctx, "orders", docs)
//	n, _ = db.Upsert(ctx, "orders", docs) // replaces matches in place
//
// # Secondary Indexes
//
//	db.EnsureIndex(ctx, "orders", "by_customer", "$.customer", false)
//	db.EnsureIndex(ctx, "orders", "by_tag", "$.tags[*]", false)
//
// # Durability Model
//
// The working set lives in memory; durability is checkpoint-oriented.
// A checkpoint writes a full snapshot to a blob store (local directory,
// S3, MinIO, or in-memory for tests), and Open loads the latest one:
//
//	db.Checkpoint(ctx)                    // durable after this
//	db, _ = docbase.Open(ctx, docbase.WithCheckpointPath("./data"))
//
// WithAutoCheckpoint enables rate-limited background checkpoints after
// writes, and Backup copies every checkpoint blob to another store:
//
//	target, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("backups/"))
//	db.Backup(ctx, target)
package docbase
