package ulpdu

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// ApplicationContextUID is the single DICOM application context name this
// module negotiates (PS3.7 Annex A).
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// PresentationContextProposal is one RQ-side proposed context: an odd ID,
// one abstract syntax, and the transfer syntaxes offered in preference
// order.
type PresentationContextProposal struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// PresentationContextResult is one AC-side result: the echoed ID, the
// result/reason byte, and (only when accepted) the single chosen transfer
// syntax.
type PresentationContextResult struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

// UserIdentity carries an optional PS3.7 Annex D user-identity sub-item.
type UserIdentity struct {
	Present          bool
	Type             byte // 1=username, 2=username+password, 3=Kerberos, 4=SAML, 5=JWT
	PositiveResponse bool
	Username         string
	Password         string
	Token            string // Kerberos/SAML/JWT serialized token
}

// AssociateRQ is the decoded/to-be-encoded content of an A-ASSOCIATE-RQ PDU.
type AssociateRQ struct {
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContextProposal
	MaxPDULength         uint32
	ImplementationUID    string
	ImplementationVer    string
	UserIdentity         UserIdentity
}

func padAET(title string) []byte {
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, []byte(title))
	return buf
}

func trimAET(raw []byte) string {
	return strings.TrimRight(string(bytes.TrimRight(raw, "\x00")), " ")
}

// EncodeAssociateRQ builds the full PDU payload (everything after the
// 6-byte header).
func EncodeAssociateRQ(rq AssociateRQ) []byte {
	var body bytes.Buffer
	body.Write([]byte{0x00, 0x01}) // protocol version 1, big-endian
	body.Write([]byte{0x00, 0x00}) // reserved
	body.Write(padAET(rq.CalledAETitle))
	body.Write(padAET(rq.CallingAETitle))
	body.Write(make([]byte, 32)) // reserved

	appCtx := encodeSubItem(ItemApplicationContext, []byte(rq.ApplicationContext))
	body.Write(appCtx)

	for _, pc := range rq.PresentationContexts {
		body.Write(encodePresentationContextRQ(pc))
	}

	body.Write(encodeUserInformation(rq.MaxPDULength, rq.ImplementationUID, rq.ImplementationVer, rq.UserIdentity))

	return body.Bytes()
}

func encodePresentationContextRQ(pc PresentationContextProposal) []byte {
	var inner bytes.Buffer
	inner.WriteByte(pc.ID)
	inner.Write([]byte{0x00, 0x00, 0x00}) // reserved x3
	inner.Write(encodeSubItem(ItemAbstractSyntax, []byte(pc.AbstractSyntax)))
	for _, ts := range pc.TransferSyntaxes {
		inner.Write(encodeSubItem(ItemTransferSyntax, []byte(ts)))
	}
	return encodeSubItem(ItemPresentationContextRQ, inner.Bytes())
}

func encodeUserInformation(maxPDU uint32, implUID, implVer string, identity UserIdentity) []byte {
	var inner bytes.Buffer
	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, maxPDU)
	inner.Write(encodeSubItem(ItemMaxLength, maxLen))
	inner.Write(encodeSubItem(ItemImplementationClassUID, []byte(implUID)))
	if implVer != "" {
		inner.Write(encodeSubItem(ItemImplementationVersion, []byte(implVer)))
	}
	if identity.Present {
		inner.Write(encodeUserIdentityRQ(identity))
	}
	return encodeSubItem(ItemUserInformation, inner.Bytes())
}

func encodeUserIdentityRQ(id UserIdentity) []byte {
	var inner bytes.Buffer
	inner.WriteByte(id.Type)
	if id.PositiveResponse {
		inner.WriteByte(1)
	} else {
		inner.WriteByte(0)
	}
	primary := []byte(id.Username)
	if id.Type == 5 {
		primary = []byte(id.Token)
	}
	primaryLen := make([]byte, 2)
	binary.BigEndian.PutUint16(primaryLen, uint16(len(primary)))
	inner.Write(primaryLen)
	inner.Write(primary)

	secondary := []byte(id.Password)
	secondaryLen := make([]byte, 2)
	binary.BigEndian.PutUint16(secondaryLen, uint16(len(secondary)))
	inner.Write(secondaryLen)
	inner.Write(secondary)

	return encodeSubItem(ItemUserIdentityRQ, inner.Bytes())
}

// DecodeAssociateRQ parses a received A-ASSOCIATE-RQ PDU payload.
func DecodeAssociateRQ(payload []byte) (AssociateRQ, error) {
	if len(payload) < 68 {
		return AssociateRQ{}, dimseerr.NewWire("Truncated", "associate-rq shorter than fixed fields")
	}
	rq := AssociateRQ{
		CalledAETitle:  trimAET(payload[4:20]),
		CallingAETitle: trimAET(payload[20:36]),
		MaxPDULength:   16384,
	}
	items, err := decodeSubItems(payload[68:])
	if err != nil {
		return AssociateRQ{}, err
	}
	for _, item := range items {
		switch item.Type {
		case ItemApplicationContext:
			rq.ApplicationContext = string(item.Value)
		case ItemPresentationContextRQ:
			pc, err := decodePresentationContextRQ(item.Value)
			if err != nil {
				return AssociateRQ{}, err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, pc)
		case ItemUserInformation:
			maxLen, implUID, implVer, identity, err := decodeUserInformation(item.Value)
			if err != nil {
				return AssociateRQ{}, err
			}
			if maxLen > 0 {
				rq.MaxPDULength = maxLen
			}
			rq.ImplementationUID = implUID
			rq.ImplementationVer = implVer
			rq.UserIdentity = identity
		}
	}
	return rq, nil
}

func decodePresentationContextRQ(data []byte) (PresentationContextProposal, error) {
	if len(data) < 4 {
		return PresentationContextProposal{}, dimseerr.NewWire("BadSubItem", "presentation context too short")
	}
	pc := PresentationContextProposal{ID: data[0]}
	items, err := decodeSubItems(data[4:])
	if err != nil {
		return PresentationContextProposal{}, err
	}
	for _, item := range items {
		switch item.Type {
		case ItemAbstractSyntax:
			pc.AbstractSyntax = string(item.Value)
		case ItemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, string(item.Value))
		}
	}
	return pc, nil
}

func decodeUserInformation(data []byte) (maxLen uint32, implUID, implVer string, identity UserIdentity, err error) {
	items, err := decodeSubItems(data)
	if err != nil {
		return 0, "", "", UserIdentity{}, err
	}
	for _, item := range items {
		switch item.Type {
		case ItemMaxLength:
			if len(item.Value) == 4 {
				maxLen = binary.BigEndian.Uint32(item.Value)
			}
		case ItemImplementationClassUID:
			implUID = string(item.Value)
		case ItemImplementationVersion:
			implVer = string(item.Value)
		case ItemUserIdentityRQ:
			identity, err = decodeUserIdentityRQ(item.Value)
			if err != nil {
				return 0, "", "", UserIdentity{}, err
			}
		}
	}
	return maxLen, implUID, implVer, identity, nil
}

func decodeUserIdentityRQ(data []byte) (UserIdentity, error) {
	if len(data) < 4 {
		return UserIdentity{}, dimseerr.NewWire("BadSubItem", "user identity sub-item too short")
	}
	id := UserIdentity{Present: true, Type: data[0], PositiveResponse: data[1] != 0}
	rest := data[2:]
	if len(rest) < 2 {
		return UserIdentity{}, dimseerr.NewWire("BadSubItem", "user identity primary field truncated")
	}
	primaryLen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < primaryLen {
		return UserIdentity{}, dimseerr.NewWire("BadSubItem", "user identity primary field truncated")
	}
	primary := rest[:primaryLen]
	rest = rest[primaryLen:]
	if id.Type == 5 {
		id.Token = string(primary)
	} else {
		id.Username = string(primary)
	}
	if len(rest) >= 2 {
		secondaryLen := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if len(rest) >= secondaryLen {
			id.Password = string(rest[:secondaryLen])
		}
	}
	return id, nil
}

// AssociateAC is the decoded/to-be-encoded content of an A-ASSOCIATE-AC PDU.
type AssociateAC struct {
	CalledAETitle     string
	CallingAETitle    string
	Results           []PresentationContextResult
	MaxPDULength      uint32
	ImplementationUID string
	ImplementationVer string
	IdentityAccepted  bool
	IdentityResponse  string // server challenge for Kerberos/SAML, unused for username/JWT
}

// EncodeAssociateAC builds the full PDU payload. Every proposed context ID
// receives a result item (PS3.8 §9.3.3.3), including rejections — this
// repository does not follow the DCMTK-interop workaround of omitting
// rejected contexts.
func EncodeAssociateAC(ac AssociateAC) []byte {
	var body bytes.Buffer
	body.Write([]byte{0x00, 0x01}) // protocol version 1, big-endian
	body.Write([]byte{0x00, 0x00}) // reserved
	body.Write(padAET(ac.CalledAETitle))
	body.Write(padAET(ac.CallingAETitle))
	body.Write(make([]byte, 32))

	body.Write(encodeSubItem(ItemApplicationContext, []byte(ApplicationContextUID)))

	for _, r := range ac.Results {
		body.Write(encodePresentationContextAC(r))
	}

	body.Write(encodeUserInformation(ac.MaxPDULength, ac.ImplementationUID, ac.ImplementationVer, UserIdentity{}))

	return body.Bytes()
}

func encodePresentationContextAC(r PresentationContextResult) []byte {
	var inner bytes.Buffer
	inner.WriteByte(r.ID)
	inner.WriteByte(0x00)
	inner.WriteByte(r.Result)
	inner.WriteByte(0x00)
	if r.Result == ResultAcceptance {
		inner.Write(encodeSubItem(ItemTransferSyntax, []byte(r.TransferSyntax)))
	}
	return encodeSubItem(ItemPresentationContextAC, inner.Bytes())
}

// DecodeAssociateAC parses a received A-ASSOCIATE-AC PDU payload.
func DecodeAssociateAC(payload []byte) (AssociateAC, error) {
	if len(payload) < 68 {
		return AssociateAC{}, dimseerr.NewWire("Truncated", "associate-ac shorter than fixed fields")
	}
	ac := AssociateAC{
		CalledAETitle:  trimAET(payload[4:20]),
		CallingAETitle: trimAET(payload[20:36]),
		MaxPDULength:   16384,
	}
	items, err := decodeSubItems(payload[68:])
	if err != nil {
		return AssociateAC{}, err
	}
	for _, item := range items {
		switch item.Type {
		case ItemPresentationContextAC:
			r, err := decodePresentationContextAC(item.Value)
			if err != nil {
				return AssociateAC{}, err
			}
			ac.Results = append(ac.Results, r)
		case ItemUserInformation:
			maxLen, implUID, implVer, _, err := decodeUserInformation(item.Value)
			if err != nil {
				return AssociateAC{}, err
			}
			if maxLen > 0 {
				ac.MaxPDULength = maxLen
			}
			ac.ImplementationUID = implUID
			ac.ImplementationVer = implVer
		}
	}
	return ac, nil
}

func decodePresentationContextAC(data []byte) (PresentationContextResult, error) {
	if len(data) < 4 {
		return PresentationContextResult{}, dimseerr.NewWire("BadSubItem", "presentation context result too short")
	}
	r := PresentationContextResult{ID: data[0], Result: data[2]}
	if r.Result == ResultAcceptance {
		items, err := decodeSubItems(data[4:])
		if err != nil {
			return PresentationContextResult{}, err
		}
		for _, item := range items {
			if item.Type == ItemTransferSyntax {
				r.TransferSyntax = string(item.Value)
			}
		}
	}
	return r, nil
}

// AssociateRJ is the decoded/to-be-encoded content of an A-ASSOCIATE-RJ PDU.
type AssociateRJ struct {
	Result byte // 1=permanent, 2=transient
	Source byte
	Reason byte
}

func EncodeAssociateRJ(rj AssociateRJ) []byte {
	return []byte{0x00, rj.Result, rj.Source, rj.Reason}
}

func DecodeAssociateRJ(payload []byte) (AssociateRJ, error) {
	if len(payload) < 4 {
		return AssociateRJ{}, dimseerr.NewWire("Truncated", "associate-rj shorter than 4 bytes")
	}
	return AssociateRJ{Result: payload[1], Source: payload[2], Reason: payload[3]}, nil
}
