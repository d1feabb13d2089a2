// Package storage defines the persistence drivers behind the audit log.
package storage

import (
	"github.com/papercomputeco/glassbox/pkg/audit"
)

// Driver is an audit.Store that owns resources.
//
// Drivers are append-only: nothing in glassbox updates or deletes a stored
// record, and the SQL drivers refuse such statements outright.
type Driver interface {
	audit.Store

	// Close closes the store and releases any resources.
	Close() error
}
