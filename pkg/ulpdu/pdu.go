// Package ulpdu implements the PS3.8 Upper-Layer PDU wire codec: pure
// encode/decode functions over byte slices, with no network I/O and no
// association-state awareness. Higher layers (pkg/assoc, pkg/dimse) own
// the state machine and the socket.
package ulpdu

import (
	"encoding/binary"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// PDU type octet values, PS3.8 table 9-17.
const (
	TypeAssociateRQ byte = 0x01
	TypeAssociateAC byte = 0x02
	TypeAssociateRJ byte = 0x03
	TypePDataTF     byte = 0x04
	TypeReleaseRQ   byte = 0x05
	TypeReleaseRP   byte = 0x06
	TypeAbort       byte = 0x07
)

// Sub-item type octets used inside RQ/AC variable items.
const (
	ItemApplicationContext      byte = 0x10
	ItemPresentationContextRQ   byte = 0x20
	ItemPresentationContextAC   byte = 0x21
	ItemAbstractSyntax          byte = 0x30
	ItemTransferSyntax          byte = 0x40
	ItemUserInformation         byte = 0x50
	ItemMaxLength               byte = 0x51
	ItemImplementationClassUID  byte = 0x52
	ItemImplementationVersion   byte = 0x55
	ItemUserIdentityRQ          byte = 0x58
	ItemUserIdentityAC          byte = 0x59
)

// Presentation-context result codes, PS3.8 table 9-18.
const (
	ResultAcceptance               byte = 0x00
	ResultUserRejection             byte = 1
	ResultNoReasonProvider          byte = 2
	ResultAbstractSyntaxUnsupported byte = 3
	ResultTransferSyntaxUnsupported byte = 4
)

// MaxPDULength bounds a single decoded PDU to guard against a peer
// claiming an absurd length prefix.
const MaxPDULength = 128 * 1024 * 1024

// PDU is a decoded (or to-be-encoded) upper-layer protocol data unit: a
// one-byte type, a four-byte big-endian length, and its payload.
type PDU struct {
	Type byte
	Data []byte
}

// Encode serializes the PDU with its 6-byte header.
func (p PDU) Encode() []byte {
	buf := make([]byte, 6+len(p.Data))
	buf[0] = p.Type
	buf[1] = 0x00
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(p.Data)))
	copy(buf[6:], p.Data)
	return buf
}

// DecodeHeader parses the 6-byte PDU header and returns the PDU type and
// the expected payload length. Callers then read exactly that many bytes
// and pass them to Decode or a type-specific parser.
func DecodeHeader(header []byte) (pduType byte, length uint32, err error) {
	if len(header) != 6 {
		return 0, 0, dimseerr.NewWire("Truncated", "pdu header must be 6 bytes")
	}
	length = binary.BigEndian.Uint32(header[2:6])
	if length > MaxPDULength {
		return 0, 0, dimseerr.NewWire("OverSizedPdu", "pdu exceeds maximum accepted length")
	}
	return header[0], length, nil
}

func isKnownType(t byte) bool {
	switch t {
	case TypeAssociateRQ, TypeAssociateAC, TypeAssociateRJ, TypePDataTF, TypeReleaseRQ, TypeReleaseRP, TypeAbort:
		return true
	}
	return false
}

// Decode validates the PDU type and wraps the payload.
func Decode(pduType byte, payload []byte) (PDU, error) {
	if !isKnownType(pduType) {
		return PDU{}, dimseerr.NewWire("BadPduType", "unrecognized pdu type octet")
	}
	return PDU{Type: pduType, Data: payload}, nil
}

// subItem is a generic variable-length item: 1-byte type, 1 reserved
// byte, 2-byte big-endian length, then value.
type subItem struct {
	Type  byte
	Value []byte
}

func encodeSubItem(itemType byte, value []byte) []byte {
	buf := make([]byte, 4+len(value))
	buf[0] = itemType
	buf[1] = 0x00
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(value)))
	copy(buf[4:], value)
	return buf
}

func decodeSubItems(data []byte) ([]subItem, error) {
	var items []subItem
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, dimseerr.NewWire("BadSubItem", "truncated sub-item header")
		}
		itemType := data[0]
		length := binary.BigEndian.Uint16(data[2:4])
		if len(data) < 4+int(length) {
			return nil, dimseerr.NewWire("BadSubItem", "sub-item length exceeds remaining data")
		}
		items = append(items, subItem{Type: itemType, Value: data[4 : 4+int(length)]})
		data = data[4+int(length):]
	}
	return items, nil
}
