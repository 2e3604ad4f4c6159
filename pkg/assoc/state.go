// Package assoc implements the association-layer state machine shared by
// the SCP (receiver) and SCU (sender) sides, plus the negotiation helpers
// used to build and interpret A-ASSOCIATE-RQ/AC/RJ exchanges. The state
// machine is deliberately explicit — a State enum, an Event enum, and a
// transition table — rather than a scatter of boolean flags, following the
// PS3.8 upper-layer state-machine idiom.
package assoc

import (
	"fmt"
	"sync"
)

// State is one node of the association lifecycle. SCP and SCU share the
// same enum; not every state is reachable from both sides (e.g. only the
// SCU passes through Connecting).
type State int

const (
	Idle State = iota
	Connecting        // SCU only: dialing the peer
	AwaitingAssocRq   // SCP only: accepted a transport connection, waiting for RQ
	AwaitingAssocAc   // SCU only: RQ sent, waiting for AC/RJ
	Negotiating       // SCP only: RQ received, deciding accept/reject
	Ready             // both: association established, data transfer allowed
	Releasing         // both: release requested, waiting for the peer's RP
	Closed            // both: transport closed, terminal
	Aborted           // both: association aborted, terminal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case AwaitingAssocRq:
		return "AwaitingAssocRq"
	case AwaitingAssocAc:
		return "AwaitingAssocAc"
	case Negotiating:
		return "Negotiating"
	case Ready:
		return "Ready"
	case Releasing:
		return "Releasing"
	case Closed:
		return "Closed"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is something that happens to an association: a PDU arriving, a
// local action being requested, or the transport closing.
type Event int

const (
	EvTransportAccepted Event = iota // SCP: connection accepted
	EvDial                           // SCU: local request to connect
	EvTransportConnected            // SCU: dial succeeded
	EvRQReceived                    // SCP: A-ASSOCIATE-RQ received
	EvRQSent                        // SCU: A-ASSOCIATE-RQ sent
	EvAcceptLocal                   // SCP: local decision to accept
	EvRejectLocal                   // SCP: local decision to reject
	EvACReceived                    // SCU: A-ASSOCIATE-AC received
	EvRJReceived                    // SCU: A-ASSOCIATE-RJ received
	EvPDataSent                     // both: P-DATA-TF sent
	EvPDataReceived                 // both: P-DATA-TF received
	EvReleaseRequested              // both: local release request
	EvReleaseRQReceived             // both: A-RELEASE-RQ received
	EvReleaseRPReceived             // both: A-RELEASE-RP received
	EvAbortRequested                // both: local abort request
	EvAbortReceived                 // both: A-ABORT received
	EvTransportClosed               // both: socket closed
)

func (e Event) String() string {
	names := map[Event]string{
		EvTransportAccepted: "TransportAccepted", EvDial: "Dial",
		EvTransportConnected: "TransportConnected", EvRQReceived: "RQReceived",
		EvRQSent: "RQSent", EvAcceptLocal: "AcceptLocal", EvRejectLocal: "RejectLocal",
		EvACReceived: "ACReceived", EvRJReceived: "RJReceived", EvPDataSent: "PDataSent",
		EvPDataReceived: "PDataReceived", EvReleaseRequested: "ReleaseRequested",
		EvReleaseRQReceived: "ReleaseRQReceived", EvReleaseRPReceived: "ReleaseRPReceived",
		EvAbortRequested: "AbortRequested", EvAbortReceived: "AbortReceived",
		EvTransportClosed: "TransportClosed",
	}
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Action is what the caller should do in response to processing an event.
type Action int

const (
	ActionNone Action = iota
	ActionSendAssociateAC
	ActionSendAssociateRJ
	ActionSendReleaseRP
	ActionCloseTransport
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionSendAssociateAC:
		return "SendAssociateAC"
	case ActionSendAssociateRJ:
		return "SendAssociateRJ"
	case ActionSendReleaseRP:
		return "SendReleaseRP"
	case ActionCloseTransport:
		return "CloseTransport"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Machine is a mutex-guarded association state machine. One Machine is
// created per association (SCP side: per accepted connection; SCU side:
// per outbound connection) — never shared across associations.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine creates a machine in the Idle state.
func NewMachine() *Machine {
	return &Machine{state: Idle}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Process applies an event to the machine and returns the action the
// caller should perform. An invalid transition returns an error and
// leaves the state unchanged.
func (m *Machine) Process(ev Event) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, action, ok := transition(m.state, ev)
	if !ok {
		return ActionNone, fmt.Errorf("assoc: invalid transition: state=%s event=%s", m.state, ev)
	}
	m.state = next
	return action, nil
}

func transition(s State, ev Event) (State, Action, bool) {
	// Any state other than the terminal ones can be aborted.
	if ev == EvAbortRequested || ev == EvAbortReceived {
		if s == Closed || s == Aborted {
			return s, ActionNone, false
		}
		return Aborted, ActionNone, true
	}
	if ev == EvTransportClosed {
		if s == Closed || s == Aborted {
			return s, ActionNone, false
		}
		return Closed, ActionNone, true
	}

	switch s {
	case Idle:
		switch ev {
		case EvTransportAccepted:
			return AwaitingAssocRq, ActionNone, true
		case EvDial:
			return Connecting, ActionNone, true
		}
	case Connecting:
		switch ev {
		case EvTransportConnected:
			return Connecting, ActionNone, true
		case EvRQSent:
			return AwaitingAssocAc, ActionNone, true
		}
	case AwaitingAssocRq:
		switch ev {
		case EvRQReceived:
			return Negotiating, ActionNone, true
		}
	case Negotiating:
		switch ev {
		case EvAcceptLocal:
			return Ready, ActionSendAssociateAC, true
		case EvRejectLocal:
			return Closed, ActionSendAssociateRJ, true
		}
	case AwaitingAssocAc:
		switch ev {
		case EvACReceived:
			return Ready, ActionNone, true
		case EvRJReceived:
			return Closed, ActionNone, true
		}
	case Ready:
		switch ev {
		case EvPDataSent, EvPDataReceived:
			return Ready, ActionNone, true
		case EvReleaseRequested:
			return Releasing, ActionNone, true
		case EvReleaseRQReceived:
			return Releasing, ActionSendReleaseRP, true
		}
	case Releasing:
		switch ev {
		case EvPDataReceived:
			return Releasing, ActionNone, true
		case EvReleaseRQReceived: // collision: both sides requested release
			return Releasing, ActionSendReleaseRP, true
		case EvReleaseRPReceived:
			return Closed, ActionCloseTransport, true
		}
	}
	return s, ActionNone, false
}
