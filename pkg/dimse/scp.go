package dimse

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/otcheredev/dicom-store-gateway/pkg/assoc"
	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
	"github.com/otcheredev/dicom-store-gateway/pkg/pdv"
	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

// CStoreRequest is one received C-STORE-RQ, command set and data set
// fully reassembled.
type CStoreRequest struct {
	PresentationContextID byte
	AbstractSyntax        string
	TransferSyntax        string
	SOPInstanceUID        string
	MessageID              uint16
	Dataset                []byte
}

// CStoreResult is what the handler decides to respond with.
type CStoreResult struct {
	Status uint16
}

// StoreHandler is implemented by the receiver pipeline (pkg/receiver) to
// process one reassembled C-STORE-RQ.
type StoreHandler interface {
	HandleCStore(ctx context.Context, req CStoreRequest) (CStoreResult, error)
}

// ServerConfig controls SCP-side association negotiation.
type ServerConfig struct {
	AETitle                   string
	SupportedTransferSyntaxes []string
	ExtraAbstractSyntaxes     map[string]bool
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	// Strict rejects (A-ASSOCIATE-RJ) an RQ whose offered max PDU length
	// exceeds MaxPDULength instead of silently clamping to it.
	Strict bool
	// Promiscuous accepts unrecognized SOP classes under whatever
	// transfer syntax the peer proposed natively, instead of rejecting
	// them with AbstractSyntaxUnsupported.
	Promiscuous bool
	// IdentityValidator, if set, is consulted when the RQ carries a
	// PS3.7 Annex D user-identity sub-item. A nil validator accepts any
	// association regardless of identity content.
	IdentityValidator func(ulpdu.UserIdentity) bool
}

// OnAssociated, OnReleased and OnAborted let the receiver pipeline observe
// lifecycle transitions without this package depending on pkg/events.
type Hooks struct {
	OnAssociated func(callingAE, calledAE string, remote net.Addr)
	OnReleased   func(callingAE string)
	OnAborted    func(callingAE string, err error)
}

// ServeAssociation runs one SCP-side association to completion: negotiate,
// process C-STORE exchanges until release or abort, then return. The
// caller is expected to run this in its own goroutine per accepted
// connection (one task per association, per spec).
func ServeAssociation(ctx context.Context, conn net.Conn, cfg ServerConfig, handler StoreHandler, hooks Hooks) error {
	defer conn.Close()
	machine := assoc.NewMachine()
	if _, err := machine.Process(assoc.EvTransportAccepted); err != nil {
		return err
	}

	pdu, err := readPDU(conn)
	if err != nil {
		return err
	}
	if pdu.Type != ulpdu.TypeAssociateRQ {
		_ = writePDU(conn, ulpdu.EncodeAbort(ulpdu.Abort{Source: 2, Reason: 2}))
		return dimseerr.NewProtocol("UnexpectedPdu", "expected A-ASSOCIATE-RQ")
	}
	if _, err := machine.Process(assoc.EvRQReceived); err != nil {
		return err
	}

	rq, err := ulpdu.DecodeAssociateRQ(pdu.Data)
	if err != nil {
		_ = writePDU(conn, ulpdu.EncodeAbort(ulpdu.Abort{Source: 2, Reason: 2}))
		return err
	}

	if cfg.IdentityValidator != nil && rq.UserIdentity.Present {
		if !cfg.IdentityValidator(rq.UserIdentity) {
			rj := ulpdu.AssociateRJ{Result: 1, Source: 1, Reason: 7}
			_ = writePDU(conn, ulpdu.PDU{Type: ulpdu.TypeAssociateRJ, Data: ulpdu.EncodeAssociateRJ(rj)}.Encode())
			machine.Process(assoc.EvRejectLocal)
			return dimseerr.NewRejected(dimseerr.RejectSourceServiceUser, 7, "user identity rejected")
		}
	}

	if cfg.Strict && cfg.MaxPDULength > 0 && rq.MaxPDULength > cfg.MaxPDULength {
		rj := ulpdu.AssociateRJ{Result: 1, Source: byte(dimseerr.RejectSourceServiceProviderPresentation), Reason: 2}
		_ = writePDU(conn, ulpdu.PDU{Type: ulpdu.TypeAssociateRJ, Data: ulpdu.EncodeAssociateRJ(rj)}.Encode())
		machine.Process(assoc.EvRejectLocal)
		return dimseerr.NewRejected(dimseerr.RejectSourceServiceProviderPresentation, 2, "called AE exceeds acceptor's configured max PDU length")
	}

	negotiated := assoc.NegotiateAsAcceptor(rq, cfg.SupportedTransferSyntaxes, cfg.ExtraAbstractSyntaxes, cfg.Promiscuous)
	if cfg.MaxPDULength > 0 {
		negotiated.MaxPDULength = cfg.MaxPDULength
	}
	if !negotiated.HasAcceptedContext() {
		action, _ := machine.Process(assoc.EvRejectLocal)
		_ = action
		rj := ulpdu.AssociateRJ{Result: 1, Source: 1, Reason: 2}
		if err := writePDU(conn, ulpdu.PDU{Type: ulpdu.TypeAssociateRJ, Data: ulpdu.EncodeAssociateRJ(rj)}.Encode()); err != nil {
			return err
		}
		return dimseerr.NewNoCommonPC("no proposed presentation context was acceptable")
	}

	if _, err := machine.Process(assoc.EvAcceptLocal); err != nil {
		return err
	}
	ac := negotiated.BuildAssociateAC(cfg.ImplementationClassUID, cfg.ImplementationVersionName)
	if err := writePDU(conn, ulpdu.PDU{Type: ulpdu.TypeAssociateAC, Data: ulpdu.EncodeAssociateAC(ac)}.Encode()); err != nil {
		return err
	}
	if hooks.OnAssociated != nil {
		hooks.OnAssociated(rq.CallingAETitle, rq.CalledAETitle, conn.RemoteAddr())
	}

	assembler := pdv.NewAssembler()
	pending := map[byte]*commandAndDataset{}

	for {
		pdu, err := readPDU(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// EOF before A-RELEASE-RP is not a graceful release: the
				// peer vanished mid-association, so this ends in Aborted.
				machine.Process(assoc.EvAbortReceived)
				abortErr := dimseerr.NewProtocol("UnexpectedState", "transport closed before A-RELEASE-RP")
				if hooks.OnAborted != nil {
					hooks.OnAborted(rq.CallingAETitle, abortErr)
				}
				return abortErr
			}
			if hooks.OnAborted != nil {
				hooks.OnAborted(rq.CallingAETitle, err)
			}
			return err
		}

		switch pdu.Type {
		case ulpdu.TypePDataTF:
			if _, err := machine.Process(assoc.EvPDataReceived); err != nil {
				return err
			}
			if err := handlePDataTF(ctx, conn, pdu.Data, negotiated, assembler, pending, handler); err != nil {
				return err
			}
		case ulpdu.TypeReleaseRQ:
			if _, err := machine.Process(assoc.EvReleaseRQReceived); err != nil {
				return err
			}
			if err := writePDU(conn, ulpdu.EncodeReleaseRP()); err != nil {
				return err
			}
			if hooks.OnReleased != nil {
				hooks.OnReleased(rq.CallingAETitle)
			}
			return nil
		case ulpdu.TypeAbort:
			a, _ := ulpdu.DecodeAbort(pdu.Data)
			machine.Process(assoc.EvAbortReceived)
			if hooks.OnAborted != nil {
				hooks.OnAborted(rq.CallingAETitle, dimseerr.NewAbort(int(a.Source), int(a.Reason)))
			}
			return dimseerr.NewAbort(int(a.Source), int(a.Reason))
		default:
			return dimseerr.NewProtocol("UnexpectedPdu", "unexpected pdu type during data transfer")
		}
	}
}

type commandAndDataset struct {
	command []byte
	dataset []byte
	haveCmd bool
	haveDS  bool
	msg     Message
}

func handlePDataTF(ctx context.Context, conn net.Conn, payload []byte, negotiated *assoc.Context, assembler *pdv.Assembler, pending map[byte]*commandAndDataset, handler StoreHandler) error {
	return assembler.FeedPDUPayload(payload, func(pcID byte, isCommand bool, data []byte) error {
		cd, ok := pending[pcID]
		if !ok {
			cd = &commandAndDataset{}
			pending[pcID] = cd
		}
		if isCommand {
			msg, err := DecodeCommand(data)
			if err != nil {
				return err
			}
			cd.command = data
			cd.msg = msg
			cd.haveCmd = true
			if msg.CommandDataSetType == DataSetTypeNone {
				delete(pending, pcID)
				return dispatchCStore(ctx, conn, pcID, negotiated, cd, handler)
			}
			return nil
		}
		cd.dataset = data
		cd.haveDS = true
		if cd.haveCmd {
			delete(pending, pcID)
			return dispatchCStore(ctx, conn, pcID, negotiated, cd, handler)
		}
		return nil
	})
}

func dispatchCStore(ctx context.Context, conn net.Conn, pcID byte, negotiated *assoc.Context, cd *commandAndDataset, handler StoreHandler) error {
	pc := negotiated.Contexts[pcID]
	req := CStoreRequest{
		PresentationContextID: pcID,
		AbstractSyntax:        cd.msg.AffectedSOPClassUID,
		SOPInstanceUID:        cd.msg.AffectedSOPInstanceUID,
		MessageID:             cd.msg.MessageID,
		Dataset:               cd.dataset,
	}
	if pc != nil {
		req.TransferSyntax = pc.TransferSyntax
	}
	result, handlerErr := handler.HandleCStore(ctx, req)
	status := result.Status
	if handlerErr != nil && status == StatusSuccess {
		status = StatusCannotUnderstand
	}
	rsp := Message{
		CommandField:              CStoreRSP,
		MessageIDBeingRespondedTo: cd.msg.MessageID,
		AffectedSOPClassUID:       cd.msg.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    cd.msg.AffectedSOPInstanceUID,
		CommandDataSetType:        DataSetTypeNone,
		Status:                    status,
	}
	encoded := EncodeCommand(rsp)
	for _, p := range ulpdu.ChunkPDV(pcID, true, encoded, negotiated.MaxPDULength) {
		if err := writePDU(conn, ulpdu.EncodePDataTF(p)); err != nil {
			return err
		}
	}
	return handlerErr
}

