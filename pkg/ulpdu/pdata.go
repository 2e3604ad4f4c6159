package ulpdu

import (
	"encoding/binary"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// PDV is one presentation-data-value item inside a P-DATA-TF PDU: a
// presentation-context ID, a one-byte message-control header (bit 0 =
// command(1)/data(0), bit 1 = last(1)/not-last(0)), and the fragment
// value.
type PDV struct {
	PresentationContextID byte
	IsCommand             bool
	IsLast                bool
	Value                 []byte
}

func (p PDV) controlHeader() byte {
	var h byte
	if p.IsCommand {
		h |= 0x01
	}
	if p.IsLast {
		h |= 0x02
	}
	return h
}

// EncodePDV serializes one PDV item: 4-byte big-endian length (covering
// the PC-ID byte, the control-header byte, and the value), then those two
// bytes, then the value.
func EncodePDV(p PDV) []byte {
	buf := make([]byte, 4+2+len(p.Value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(2+len(p.Value)))
	buf[4] = p.PresentationContextID
	buf[5] = p.controlHeader()
	copy(buf[6:], p.Value)
	return buf
}

// EncodePDataTF wraps a single PDV in a full P-DATA-TF PDU.
func EncodePDataTF(p PDV) []byte {
	return PDU{Type: TypePDataTF, Data: EncodePDV(p)}.Encode()
}

// DecodePDVs walks every PDV item inside a P-DATA-TF PDU's payload.
func DecodePDVs(payload []byte) ([]PDV, error) {
	var pdvs []PDV
	for len(payload) > 0 {
		if len(payload) < 6 {
			return nil, dimseerr.NewWire("Truncated", "pdv header truncated")
		}
		pdvLen := binary.BigEndian.Uint32(payload[0:4])
		if pdvLen < 2 {
			return nil, dimseerr.NewWire("BadSubItem", "pdv length must cover at least the control bytes")
		}
		if uint32(len(payload)-4) < pdvLen {
			return nil, dimseerr.NewWire("Truncated", "pdv value shorter than declared length")
		}
		pcID := payload[4]
		ctrl := payload[5]
		valueLen := int(pdvLen) - 2
		value := payload[6 : 6+valueLen]
		pdvs = append(pdvs, PDV{
			PresentationContextID: pcID,
			IsCommand:             ctrl&0x01 != 0,
			IsLast:                ctrl&0x02 != 0,
			Value:                 value,
		})
		payload = payload[4+int(pdvLen):]
	}
	return pdvs, nil
}

// ChunkPDV splits data into as many PDVs as needed so that each encoded
// P-DATA-TF PDU stays within maxPDULength (the PDU header and PDV header
// overhead, 12 bytes total, is subtracted from the budget).
func ChunkPDV(pcID byte, isCommand bool, data []byte, maxPDULength uint32) []PDV {
	const pduHeader = 6
	const pdvHeader = 6
	budget := int(maxPDULength) - pduHeader - pdvHeader
	if budget <= 0 {
		budget = 16384 - pduHeader - pdvHeader
	}
	if len(data) == 0 {
		return []PDV{{PresentationContextID: pcID, IsCommand: isCommand, IsLast: true, Value: nil}}
	}
	var pdvs []PDV
	for offset := 0; offset < len(data); {
		end := offset + budget
		last := false
		if end >= len(data) {
			end = len(data)
			last = true
		}
		pdvs = append(pdvs, PDV{
			PresentationContextID: pcID,
			IsCommand:             isCommand,
			IsLast:                last,
			Value:                 data[offset:end],
		})
		offset = end
	}
	return pdvs
}
