// Package dimse implements the C-STORE DIMSE command-set codec and the
// SCP/SCU service layer that sits on top of pkg/assoc and pkg/pdv: command
// encode/decode (always Implicit VR Little Endian, per PS3.7 §6.3.1),
// message-ID correlation, and status handling.
package dimse

import (
	"encoding/binary"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// Command field values, PS3.7 table 9.3.
const (
	CStoreRQ  uint16 = 0x0001
	CStoreRSP uint16 = 0x8001
	CEchoRQ   uint16 = 0x0030
	CEchoRSP  uint16 = 0x8030
)

// Status codes relevant to C-STORE, PS3.7 Annex C.
const (
	StatusSuccess             uint16 = 0x0000
	StatusRefusedOutOfResources uint16 = 0xA700
	StatusErrorDataSetDoesNotMatchSOPClass uint16 = 0xA900
	StatusCannotUnderstand    uint16 = 0xC000
	StatusWarningCoercion     uint16 = 0xB000
)

// CommandDataSetType values: anything other than 0x0101 means a data set follows.
const (
	DataSetTypeNone    uint16 = 0x0101
	DataSetTypePresent uint16 = 0x0000
)

// Message is a decoded/to-be-encoded DIMSE command set, covering exactly
// the elements C-STORE-RQ/RSP use.
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
}

// group/element tag pairs used by the command set, PS3.7 E.1.
const (
	tagGroupLength              = 0x0000_0000
	tagAffectedSOPClassUID      = 0x0000_0002
	tagCommandField             = 0x0000_0100
	tagMessageID                = 0x0000_0110
	tagMessageIDBeingRespondedTo = 0x0000_0120
	tagPriority                 = 0x0000_0700
	tagCommandDataSetType       = 0x0000_0800
	tagStatus                   = 0x0000_0900
	tagAffectedSOPInstanceUID   = 0x0000_1000
)

func splitTag(tag uint32) (group, element uint16) {
	return uint16(tag >> 16), uint16(tag)
}

func appendImplicitElement(buf []byte, tag uint32, value []byte) []byte {
	group, element := splitTag(tag)
	header := make([]byte, 8)
	binary.LittleEndian.PutUint16(header[0:2], group)
	binary.LittleEndian.PutUint16(header[2:4], element)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(value)))
	buf = append(buf, header...)
	buf = append(buf, value...)
	return buf
}

func uidBytes(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 != 0 {
		b = append(b, 0x00)
	}
	return b
}

func uint16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// EncodeCommand renders a Message as an Implicit VR Little Endian command
// set with a leading Group Length element.
func EncodeCommand(m Message) []byte {
	var elems []byte
	if m.AffectedSOPClassUID != "" {
		elems = appendImplicitElement(elems, tagAffectedSOPClassUID, uidBytes(m.AffectedSOPClassUID))
	}
	elems = appendImplicitElement(elems, tagCommandField, uint16Bytes(m.CommandField))
	if m.MessageID != 0 && m.MessageIDBeingRespondedTo == 0 {
		elems = appendImplicitElement(elems, tagMessageID, uint16Bytes(m.MessageID))
	}
	if m.MessageIDBeingRespondedTo != 0 {
		elems = appendImplicitElement(elems, tagMessageIDBeingRespondedTo, uint16Bytes(m.MessageIDBeingRespondedTo))
	}
	if m.Priority != 0 {
		elems = appendImplicitElement(elems, tagPriority, uint16Bytes(m.Priority))
	}
	elems = appendImplicitElement(elems, tagCommandDataSetType, uint16Bytes(m.CommandDataSetType))
	if m.AffectedSOPInstanceUID != "" {
		elems = appendImplicitElement(elems, tagAffectedSOPInstanceUID, uidBytes(m.AffectedSOPInstanceUID))
	}
	if m.CommandField == CStoreRSP || m.CommandField == CEchoRSP {
		elems = appendImplicitElement(elems, tagStatus, uint16Bytes(m.Status))
	}

	groupLength := appendImplicitElement(nil, tagGroupLength, uint32Bytes(uint32(len(elems))))
	return append(groupLength, elems...)
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// DecodeCommand parses an Implicit VR Little Endian command set.
func DecodeCommand(data []byte) (Message, error) {
	m := Message{CommandDataSetType: DataSetTypeNone}
	for len(data) > 0 {
		if len(data) < 8 {
			return Message{}, dimseerr.NewWire("Truncated", "command element header truncated")
		}
		group := binary.LittleEndian.Uint16(data[0:2])
		element := binary.LittleEndian.Uint16(data[2:4])
		length := binary.LittleEndian.Uint32(data[4:8])
		if uint32(len(data)-8) < length {
			return Message{}, dimseerr.NewWire("Truncated", "command element value truncated")
		}
		value := data[8 : 8+length]
		tag := uint32(group)<<16 | uint32(element)
		switch tag {
		case tagAffectedSOPClassUID:
			m.AffectedSOPClassUID = trimUID(value)
		case tagCommandField:
			m.CommandField = binary.LittleEndian.Uint16(value)
		case tagMessageID:
			m.MessageID = binary.LittleEndian.Uint16(value)
		case tagMessageIDBeingRespondedTo:
			m.MessageIDBeingRespondedTo = binary.LittleEndian.Uint16(value)
		case tagPriority:
			m.Priority = binary.LittleEndian.Uint16(value)
		case tagCommandDataSetType:
			m.CommandDataSetType = binary.LittleEndian.Uint16(value)
		case tagStatus:
			m.Status = binary.LittleEndian.Uint16(value)
		case tagAffectedSOPInstanceUID:
			m.AffectedSOPInstanceUID = trimUID(value)
		}
		data = data[8+length:]
	}
	return m, nil
}

func trimUID(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == 0x00 || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return string(b)
}
