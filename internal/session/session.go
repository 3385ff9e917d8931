// Package session assigns short, sortable identifiers to connections so
// log lines from the sender, receiver, and network interface for the same
// connection can be correlated without carrying four-tuples through every
// call site.
package session

import "github.com/rs/xid"

// ID is a globally unique, time-sortable connection identifier.
type ID struct {
	id xid.ID
}

// New mints a fresh session ID.
func New() ID {
	return ID{id: xid.New()}
}

// String renders the ID for use as a log field or metrics label.
func (i ID) String() string {
	return i.id.String()
}

// IsZero reports whether this is the unset ID value.
func (i ID) IsZero() bool {
	return i.id.IsZero()
}
