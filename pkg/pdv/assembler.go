// Package pdv assembles presentation-data-value fragments received over
// consecutive P-DATA-TF PDUs into complete DIMSE command and data-set
// byte streams. A single in-flight message is tracked per (presentation
// context ID, command-or-data) key, per spec: a P-DATA-TF stream may
// legally interleave fragments belonging to different presentation
// contexts, so the assembler must not conflate them.
package pdv

import (
	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

type key struct {
	pcID      byte
	isCommand bool
}

// Assembler accumulates PDV fragments and reports once a full command or
// data-set has been received for a given presentation context.
type Assembler struct {
	pending map[key][]byte
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[key][]byte)}
}

// Feed appends one PDV's value to its in-flight buffer and, if IsLast is
// set, returns the complete accumulated bytes and true. Otherwise it
// returns (nil, false) and the caller should keep reading PDVs.
func (a *Assembler) Feed(p ulpdu.PDV) ([]byte, bool) {
	k := key{pcID: p.PresentationContextID, isCommand: p.IsCommand}
	buf := append(a.pending[k], p.Value...)
	if !p.IsLast {
		a.pending[k] = buf
		return nil, false
	}
	delete(a.pending, k)
	return buf, true
}

// Reset discards any partially-assembled fragments for a given
// presentation context.
func (a *Assembler) Reset(pcID byte) {
	delete(a.pending, key{pcID: pcID, isCommand: true})
	delete(a.pending, key{pcID: pcID, isCommand: false})
}

// FeedPDUPayload decodes every PDV within one P-DATA-TF payload and feeds
// each in turn, invoking onComplete whenever a (command|dataset) stream
// finishes for its presentation context.
func (a *Assembler) FeedPDUPayload(payload []byte, onComplete func(pcID byte, isCommand bool, data []byte) error) error {
	pdvs, err := ulpdu.DecodePDVs(payload)
	if err != nil {
		return err
	}
	if len(pdvs) == 0 {
		return dimseerr.NewWire("BadSubItem", "p-data-tf carried no pdv items")
	}
	for _, p := range pdvs {
		if data, done := a.Feed(p); done {
			if err := onComplete(p.PresentationContextID, p.IsCommand, data); err != nil {
				return err
			}
		}
	}
	return nil
}
