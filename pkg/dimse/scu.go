package dimse

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/otcheredev/dicom-store-gateway/pkg/assoc"
	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

// ClientConfig describes one outbound association.
type ClientConfig struct {
	CallingAETitle            string
	CalledAETitle             string
	Address                   string // host:port
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	ConnectTimeout            time.Duration
	ReadTimeout               time.Duration
	WriteTimeout              time.Duration
	Identity                  ulpdu.UserIdentity
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = 16384
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	return c
}

// Client is one open SCU-side association: the negotiated presentation
// contexts and the raw connection, ready to send C-STORE-RQ messages.
type Client struct {
	conn       net.Conn
	cfg        ClientConfig
	negotiated *assoc.Context
	machine    *assoc.Machine
	nextMsgID  uint16
}

// Associate dials the peer and negotiates an association proposing one
// presentation context per distinct (abstractSyntax, transferSyntaxes)
// pair in proposals — the caller (pkg/sender) is expected to have
// pre-scanned its shard of work so every SOP class it is about to send is
// proposed up front, per spec.
func Associate(ctx context.Context, cfg ClientConfig, proposals []ulpdu.PresentationContextProposal) (*Client, error) {
	cfg = cfg.withDefaults()
	machine := assoc.NewMachine()
	if _, err := machine.Process(assoc.EvDial); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, dimseerr.NewWire("Truncated", fmt.Sprintf("dial failed: %v", err))
	}
	machine.Process(assoc.EvTransportConnected)

	rq := ulpdu.AssociateRQ{
		CalledAETitle:        cfg.CalledAETitle,
		CallingAETitle:       cfg.CallingAETitle,
		ApplicationContext:   ulpdu.ApplicationContextUID,
		PresentationContexts: proposals,
		MaxPDULength:         cfg.MaxPDULength,
		ImplementationUID:    cfg.ImplementationClassUID,
		ImplementationVer:    cfg.ImplementationVersionName,
		UserIdentity:         cfg.Identity,
	}
	if err := writePDU(conn, ulpdu.PDU{Type: ulpdu.TypeAssociateRQ, Data: ulpdu.EncodeAssociateRQ(rq)}.Encode()); err != nil {
		conn.Close()
		return nil, err
	}
	machine.Process(assoc.EvRQSent)

	pdu, err := readPDU(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	switch pdu.Type {
	case ulpdu.TypeAssociateAC:
		machine.Process(assoc.EvACReceived)
		ac, err := ulpdu.DecodeAssociateAC(pdu.Data)
		if err != nil {
			conn.Close()
			return nil, err
		}
		negotiated, err := assoc.ApplyAssociateAC(proposals, ac)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &Client{conn: conn, cfg: cfg, negotiated: negotiated, machine: machine}, nil
	case ulpdu.TypeAssociateRJ:
		machine.Process(assoc.EvRJReceived)
		rj, _ := ulpdu.DecodeAssociateRJ(pdu.Data)
		conn.Close()
		return nil, dimseerr.NewRejected(dimseerr.RejectSource(rj.Source), int(rj.Reason), "peer rejected association")
	default:
		conn.Close()
		return nil, dimseerr.NewProtocol("UnexpectedPdu", "expected A-ASSOCIATE-AC or RJ")
	}
}

// ContextForAbstractSyntax exposes which accepted presentation context a
// given SOP class can be sent under.
func (c *Client) ContextForAbstractSyntax(abstractSyntax string) (byte, bool) {
	return c.negotiated.ContextForAbstractSyntax(abstractSyntax)
}

// SendCStore sends one C-STORE-RQ with its data set and waits for the
// matching C-STORE-RSP.
func (c *Client) SendCStore(sopClassUID, sopInstanceUID string, dataset []byte, transferSyntax string) (CStoreResult, error) {
	pcID, ok := c.ContextForAbstractSyntax(sopClassUID)
	if !ok {
		return CStoreResult{}, dimseerr.NewNoCommonPC(fmt.Sprintf("no accepted presentation context for %s", sopClassUID))
	}
	pc := c.negotiated.Contexts[pcID]
	if pc.TransferSyntax != transferSyntax {
		return CStoreResult{}, dimseerr.NewProtocol("PcMismatch", fmt.Sprintf(
			"data set transfer syntax %s does not match the negotiated transfer syntax %s for presentation context %d",
			transferSyntax, pc.TransferSyntax, pcID))
	}
	c.nextMsgID++
	msgID := c.nextMsgID

	cmd := Message{
		CommandField:           CStoreRQ,
		MessageID:              msgID,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		Priority:               0x0002,
		CommandDataSetType:     DataSetTypePresent,
	}
	encodedCmd := EncodeCommand(cmd)
	for _, p := range ulpdu.ChunkPDV(pcID, true, encodedCmd, c.negotiated.MaxPDULength) {
		if err := writePDU(c.conn, ulpdu.EncodePDataTF(p)); err != nil {
			return CStoreResult{}, err
		}
	}
	for _, p := range ulpdu.ChunkPDV(pcID, false, dataset, c.negotiated.MaxPDULength) {
		if err := writePDU(c.conn, ulpdu.EncodePDataTF(p)); err != nil {
			return CStoreResult{}, err
		}
	}
	c.machine.Process(assoc.EvPDataSent)

	return c.receiveCStoreRSP(msgID)
}

func (c *Client) receiveCStoreRSP(msgID uint16) (CStoreResult, error) {
	var commandBuf []byte
	for {
		pdu, err := readPDU(c.conn)
		if err != nil {
			return CStoreResult{}, err
		}
		if pdu.Type != ulpdu.TypePDataTF {
			return CStoreResult{}, dimseerr.NewProtocol("UnexpectedPdu", "expected P-DATA-TF carrying C-STORE-RSP")
		}
		pdvs, err := ulpdu.DecodePDVs(pdu.Data)
		if err != nil {
			return CStoreResult{}, err
		}
		for _, p := range pdvs {
			if !p.IsCommand {
				continue
			}
			commandBuf = append(commandBuf, p.Value...)
			if p.IsLast {
				msg, err := DecodeCommand(commandBuf)
				if err != nil {
					return CStoreResult{}, err
				}
				if msg.MessageIDBeingRespondedTo != msgID {
					return CStoreResult{}, dimseerr.NewProtocol("PcMismatch", "c-store-rsp message id mismatch")
				}
				return CStoreResult{Status: msg.Status}, nil
			}
		}
	}
}

// Release sends A-RELEASE-RQ and waits for A-RELEASE-RP, then closes the
// connection.
func (c *Client) Release() error {
	defer c.conn.Close()
	if _, err := c.machine.Process(assoc.EvReleaseRequested); err != nil {
		return err
	}
	if err := writePDU(c.conn, ulpdu.EncodeReleaseRQ()); err != nil {
		return err
	}
	pdu, err := readPDU(c.conn)
	if err != nil {
		return err
	}
	if pdu.Type != ulpdu.TypeReleaseRP {
		return dimseerr.NewProtocol("UnexpectedPdu", "expected A-RELEASE-RP")
	}
	_, err = c.machine.Process(assoc.EvReleaseRPReceived)
	return err
}

// Abort sends A-ABORT immediately and closes the connection.
func (c *Client) Abort() error {
	defer c.conn.Close()
	c.machine.Process(assoc.EvAbortRequested)
	return writePDU(c.conn, ulpdu.EncodeAbort(ulpdu.Abort{Source: 0, Reason: 0}))
}
