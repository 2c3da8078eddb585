package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// NewObjectID mints a fresh 12-byte globally-unique object id.
func NewObjectID() Value { return ObjectID(xid.New()) }

// NewGUID mints a fresh random 128-bit guid.
func NewGUID() Value { return GUID(uuid.New()) }

// NowDateTime returns the current timestamp as a datetime value.
func NowDateTime() Value { return DateTime(time.Now()) }
