package storage

import (
	"context"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// ObjectClient is the narrow seam an object-store SDK client must satisfy
// to back an ObjectStoreBackend. No third-party object-store SDK is
// imported here (see DESIGN.md's stdlib-only justification) — operators
// wire a concrete client (S3, GCS, ...) that implements this interface
// from their own main package.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ObjectStoreBackend adapts an ObjectClient to the Backend interface using
// the documented base/<study>/<series>/<sop>.dcm key layout as the object
// key, scoped under a single bucket.
type ObjectStoreBackend struct {
	Client ObjectClient
	Bucket string
}

func (o *ObjectStoreBackend) Put(ctx context.Context, key Key, data []byte) (string, error) {
	if err := o.Client.PutObject(ctx, o.Bucket, key.Path(), data); err != nil {
		return "", dimseerr.NewStorage("Unavailable", err)
	}
	return "s3://" + o.Bucket + "/" + key.Path(), nil
}

func (o *ObjectStoreBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := o.Client.GetObject(ctx, o.Bucket, key.Path())
	if err != nil {
		return nil, dimseerr.NewStorage("NotFound", err)
	}
	return data, nil
}

func (o *ObjectStoreBackend) List(ctx context.Context, studyInstanceUID string) ([]Key, error) {
	names, err := o.Client.ListObjects(ctx, o.Bucket, studyInstanceUID+"/")
	if err != nil {
		return nil, dimseerr.NewStorage("Unavailable", err)
	}
	keys := make([]Key, 0, len(names))
	for _, name := range names {
		k, ok := parseKeyPath(name)
		if ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func parseKeyPath(path string) (Key, bool) {
	parts := splitN(path, '/', 3)
	if len(parts) != 3 {
		return Key{}, false
	}
	sop := parts[2]
	if len(sop) > 4 && sop[len(sop)-4:] == ".dcm" {
		sop = sop[:len(sop)-4]
	}
	return Key{StudyInstanceUID: parts[0], SeriesInstanceUID: parts[1], SOPInstanceUID: sop}, true
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
