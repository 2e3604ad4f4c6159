package assoc

import (
	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

// PresentationContext is the negotiated outcome of one presentation
// context: the abstract syntax it carries and, once accepted, the single
// transfer syntax chosen for it.
type PresentationContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntax   string
	Accepted         bool
	RejectReason     byte
}

// Context holds everything negotiated for one association: AE titles, the
// accepted/rejected presentation contexts keyed by ID, and the agreed
// max PDU length.
type Context struct {
	CalledAETitle  string
	CallingAETitle string
	MaxPDULength   uint32
	Contexts       map[byte]*PresentationContext
}

// SupportedAbstractSyntax reports whether the SCP is willing to receive
// C-STORE traffic for this SOP class. extra lists additional UIDs to
// accept; beyond those, the Verification SOP Class and any UID under the
// standard Storage SOP Class root ("1.2.840.10008.5.1.4.1.1") are accepted.
func SupportedAbstractSyntax(uid string, extra map[string]bool) bool {
	if extra[uid] {
		return true
	}
	if uid == VerificationSOPClass {
		return true
	}
	return len(uid) > len(storageSOPClassRoot) && uid[:len(storageSOPClassRoot)] == storageSOPClassRoot
}

const storageSOPClassRoot = "1.2.840.10008.5.1.4.1.1"

// VerificationSOPClass is the C-ECHO SOP class UID, always accepted so
// peers can verify connectivity even though this repository does not
// otherwise implement C-ECHO's DIMSE semantics beyond a trivial response.
const VerificationSOPClass = "1.2.840.10008.1.1"

// NegotiateAsAcceptor walks every context the peer proposed and decides
// accept/reject per spec: accept exactly one transfer syntax per context
// (the first proposed one we support), or reject with a PS3.8 reason code.
// In promiscuous mode, an abstract syntax this SCP does not otherwise
// recognize is still accepted: under the first proposed transfer syntax
// in supportedTransferSyntaxes if there is one, and otherwise under
// whichever transfer syntax the peer proposed first (its native encoding).
func NegotiateAsAcceptor(rq ulpdu.AssociateRQ, supportedTransferSyntaxes []string, extraAbstractSyntaxes map[string]bool, promiscuous bool) *Context {
	ctx := &Context{
		CalledAETitle:  rq.CalledAETitle,
		CallingAETitle: rq.CallingAETitle,
		MaxPDULength:   rq.MaxPDULength,
		Contexts:       make(map[byte]*PresentationContext),
	}
	if ctx.MaxPDULength == 0 {
		ctx.MaxPDULength = 16384
	}
	for _, proposal := range rq.PresentationContexts {
		pc := &PresentationContext{ID: proposal.ID, AbstractSyntax: proposal.AbstractSyntax}
		known := SupportedAbstractSyntax(proposal.AbstractSyntax, extraAbstractSyntaxes)
		if !known && !promiscuous {
			pc.RejectReason = ulpdu.ResultAbstractSyntaxUnsupported
			ctx.Contexts[proposal.ID] = pc
			continue
		}
		ts := firstSupported(proposal.TransferSyntaxes, supportedTransferSyntaxes)
		if ts == "" {
			if !known && promiscuous && len(proposal.TransferSyntaxes) > 0 {
				ts = proposal.TransferSyntaxes[0]
			} else {
				pc.RejectReason = ulpdu.ResultTransferSyntaxUnsupported
				ctx.Contexts[proposal.ID] = pc
				continue
			}
		}
		pc.Accepted = true
		pc.TransferSyntax = ts
		ctx.Contexts[proposal.ID] = pc
	}
	return ctx
}

func firstSupported(proposed, supported []string) string {
	supportedSet := make(map[string]bool, len(supported))
	for _, s := range supported {
		supportedSet[s] = true
	}
	for _, p := range proposed {
		if supportedSet[p] {
			return p
		}
	}
	return ""
}

// HasAcceptedContext reports whether at least one proposed context was
// accepted; if none were, the SCP must reject the whole association with
// NoCommonPresentationContext rather than send an AC with nothing usable.
func (c *Context) HasAcceptedContext() bool {
	for _, pc := range c.Contexts {
		if pc.Accepted {
			return true
		}
	}
	return false
}

// BuildAssociateAC renders the negotiated Context into the wire struct,
// including a result item for every proposed context (accepted or not).
func (c *Context) BuildAssociateAC(implUID, implVer string) ulpdu.AssociateAC {
	ac := ulpdu.AssociateAC{
		CalledAETitle:     c.CalledAETitle,
		CallingAETitle:    c.CallingAETitle,
		MaxPDULength:      c.MaxPDULength,
		ImplementationUID: implUID,
		ImplementationVer: implVer,
	}
	for id, pc := range c.Contexts {
		r := ulpdu.PresentationContextResult{ID: id}
		if pc.Accepted {
			r.Result = ulpdu.ResultAcceptance
			r.TransferSyntax = pc.TransferSyntax
		} else {
			r.Result = pc.RejectReason
		}
		ac.Results = append(ac.Results, r)
	}
	return ac
}

// ApplyAssociateAC folds an SCU-received AC back into the proposals it
// sent, recording which contexts the peer accepted and with which
// transfer syntax.
func ApplyAssociateAC(proposals []ulpdu.PresentationContextProposal, ac ulpdu.AssociateAC) (*Context, error) {
	ctx := &Context{
		CalledAETitle:  ac.CalledAETitle,
		CallingAETitle: ac.CallingAETitle,
		MaxPDULength:   ac.MaxPDULength,
		Contexts:       make(map[byte]*PresentationContext),
	}
	abstractByID := make(map[byte]string, len(proposals))
	for _, p := range proposals {
		abstractByID[p.ID] = p.AbstractSyntax
	}
	for _, r := range ac.Results {
		pc := &PresentationContext{ID: r.ID, AbstractSyntax: abstractByID[r.ID]}
		if r.Result == ulpdu.ResultAcceptance {
			pc.Accepted = true
			pc.TransferSyntax = r.TransferSyntax
		} else {
			pc.RejectReason = r.Result
		}
		ctx.Contexts[r.ID] = pc
	}
	if !ctx.HasAcceptedContext() {
		return ctx, dimseerr.NewNoCommonPC("peer accepted no proposed presentation context")
	}
	return ctx, nil
}

// ContextForAbstractSyntax returns an accepted context ID whose abstract
// syntax matches, used by the SCU to pick a PC before sending. When several
// accepted contexts match, which of them is returned is not defined.
func (c *Context) ContextForAbstractSyntax(abstractSyntax string) (byte, bool) {
	for id, pc := range c.Contexts {
		if pc.Accepted && pc.AbstractSyntax == abstractSyntax {
			return id, true
		}
	}
	return 0, false
}
