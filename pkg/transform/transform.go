// Package transform implements the pre-store transform contract: a
// caller-supplied hook that may rewrite tag values on a received data set
// before it is persisted. A modification re-encodes the data set and
// causes the C-STORE response status to carry the 0xB000 coercion-of-data
// warning rather than plain success.
package transform

import (
	"context"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// TagEdit is one requested change: set the tag's value to NewValue, or
// delete it entirely if Delete is true.
type TagEdit struct {
	Tag      tag.Tag
	NewValue string
	Delete   bool
}

// Hook is implemented by callers that want to inspect or rewrite a data
// set before it is stored.
type Hook interface {
	Transform(ctx context.Context, ds *dicom.Dataset) ([]TagEdit, error)
}

// HookFunc adapts a plain function to Hook.
type HookFunc func(ctx context.Context, ds *dicom.Dataset) ([]TagEdit, error)

func (f HookFunc) Transform(ctx context.Context, ds *dicom.Dataset) ([]TagEdit, error) {
	return f(ctx, ds)
}

// Result is what Apply reports back to the receiver pipeline.
type Result struct {
	Modified bool
	Edits    []TagEdit
}

// Apply runs the hook (if any) and mutates ds in place for every returned
// edit. A hook returning a non-nil error is wrapped in a
// dimseerr.Transform so the receiver pipeline can fail the C-STORE with
// the right status without inspecting hook internals.
func Apply(ctx context.Context, hook Hook, ds *dicom.Dataset) (Result, error) {
	if hook == nil {
		return Result{}, nil
	}
	edits, err := hook.Transform(ctx, ds)
	if err != nil {
		return Result{}, dimseerr.NewTransform("pre-store hook returned an error", err)
	}
	if len(edits) == 0 {
		return Result{}, nil
	}
	for _, e := range edits {
		if e.Delete {
			removeElement(ds, e.Tag)
			continue
		}
		setStringValue(ds, e.Tag, e.NewValue)
	}
	return Result{Modified: true, Edits: edits}, nil
}

func removeElement(ds *dicom.Dataset, t tag.Tag) {
	filtered := ds.Elements[:0]
	for _, el := range ds.Elements {
		if el.Tag != t {
			filtered = append(filtered, el)
		}
	}
	ds.Elements = filtered
}

func setStringValue(ds *dicom.Dataset, t tag.Tag, value string) {
	for i, el := range ds.Elements {
		if el.Tag == t {
			newVal, err := dicom.NewValue([]string{value})
			if err == nil {
				ds.Elements[i].Value = newVal
			}
			return
		}
	}
}
