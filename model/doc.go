// Package model defines the core value types shared across docbase:
// documents, the ordered Value union used for index keys, page and
// block addressing, and identity generation for auto-assigned ids.
package model
