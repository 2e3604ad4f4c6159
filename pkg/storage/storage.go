// Package storage defines the storage backend interface (spec.md §6) and
// two implementations: a filesystem backend using the documented
// base/<study>/<series>/<sop>.dcm key layout, and an object-store backend
// behind the same narrow interface.
package storage

import (
	"context"
	"io"
)

// Key identifies one stored instance by its three owning UIDs.
type Key struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
}

// Path renders the documented key layout.
func (k Key) Path() string {
	return k.StudyInstanceUID + "/" + k.SeriesInstanceUID + "/" + k.SOPInstanceUID + ".dcm"
}

// Backend is safe for concurrent Put from many receiver goroutines and
// concurrent Get from many sender/query goroutines. Put returns the URI
// that actually identifies the stored instance in that backend — the
// canonical identity used downstream in events and in the aggregator,
// which need not match Key.Path() (e.g. an object-store backend reports
// its bucket-qualified location).
type Backend interface {
	Put(ctx context.Context, key Key, data []byte) (uri string, err error)
	Get(ctx context.Context, key Key) ([]byte, error)
	List(ctx context.Context, studyInstanceUID string) ([]Key, error)
}

// Reader describes streaming access to a stored instance. It is not part
// of Backend, and none of the backends in this package implement it.
type Reader interface {
	Open(ctx context.Context, key Key) (io.ReadCloser, error)
}
