package ulpdu

import "github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"

// EncodeReleaseRQ builds an A-RELEASE-RQ PDU (4 reserved bytes, PS3.8 §9.3.6).
func EncodeReleaseRQ() []byte {
	return PDU{Type: TypeReleaseRQ, Data: make([]byte, 4)}.Encode()
}

// EncodeReleaseRP builds an A-RELEASE-RP PDU (4 reserved bytes, PS3.8 §9.3.7).
func EncodeReleaseRP() []byte {
	return PDU{Type: TypeReleaseRP, Data: make([]byte, 4)}.Encode()
}

// AssociateRJ-style abort fields.
type Abort struct {
	Source byte // 0=service-user, 1=reserved, 2=service-provider
	Reason byte
}

// EncodeAbort builds an A-ABORT PDU (PS3.8 §9.3.8): 2 reserved bytes then
// source and reason octets.
func EncodeAbort(a Abort) []byte {
	return PDU{Type: TypeAbort, Data: []byte{0x00, 0x00, a.Source, a.Reason}}.Encode()
}

// DecodeAbort parses an A-ABORT PDU payload.
func DecodeAbort(payload []byte) (Abort, error) {
	if len(payload) < 4 {
		return Abort{}, dimseerr.NewWire("Truncated", "abort pdu shorter than 4 bytes")
	}
	return Abort{Source: payload[2], Reason: payload[3]}, nil
}
