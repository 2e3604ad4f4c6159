package assoc

import "testing"

func TestMachineHappyPathSCP(t *testing.T) {
	m := NewMachine()
	steps := []struct {
		ev     Event
		want   State
		action Action
	}{
		{EvTransportAccepted, AwaitingAssocRq, ActionNone},
		{EvRQReceived, Negotiating, ActionNone},
		{EvAcceptLocal, Ready, ActionSendAssociateAC},
		{EvPDataReceived, Ready, ActionNone},
		{EvReleaseRQReceived, Releasing, ActionSendReleaseRP},
	}
	for _, step := range steps {
		action, err := m.Process(step.ev)
		if err != nil {
			t.Fatalf("Process(%s): %v", step.ev, err)
		}
		if m.Current() != step.want {
			t.Errorf("after %s: state = %s, want %s", step.ev, m.Current(), step.want)
		}
		if action != step.action {
			t.Errorf("after %s: action = %s, want %s", step.ev, action, step.action)
		}
	}
}

func TestMachineHappyPathSCU(t *testing.T) {
	m := NewMachine()
	events := []Event{EvDial, EvRQSent, EvACReceived, EvPDataSent, EvReleaseRequested, EvReleaseRPReceived}
	for _, ev := range events {
		if _, err := m.Process(ev); err != nil {
			t.Fatalf("Process(%s): %v", ev, err)
		}
	}
	if m.Current() != Closed {
		t.Errorf("final state = %s, want Closed", m.Current())
	}
}

func TestMachineInvalidTransition(t *testing.T) {
	m := NewMachine()
	if _, err := m.Process(EvPDataReceived); err == nil {
		t.Error("expected error: P-DATA cannot be received from Idle")
	}
	if m.Current() != Idle {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestMachineAbortFromAnyNonTerminalState(t *testing.T) {
	m := NewMachine()
	m.Process(EvTransportAccepted)
	m.Process(EvRQReceived)
	if _, err := m.Process(EvAbortReceived); err != nil {
		t.Fatalf("Process(EvAbortReceived): %v", err)
	}
	if m.Current() != Aborted {
		t.Errorf("state = %s, want Aborted", m.Current())
	}
}

func TestReleaseCollisionIsIdempotent(t *testing.T) {
	m := NewMachine()
	m.Process(EvTransportAccepted)
	m.Process(EvRQReceived)
	m.Process(EvAcceptLocal)
	if _, err := m.Process(EvReleaseRQReceived); err != nil {
		t.Fatalf("first EvReleaseRQReceived: %v", err)
	}
	if _, err := m.Process(EvReleaseRQReceived); err != nil {
		t.Fatalf("second EvReleaseRQReceived (collision) should be harmless: %v", err)
	}
	if m.Current() != Releasing {
		t.Errorf("state = %s, want Releasing", m.Current())
	}
}

func TestAbortFromTerminalStateRejected(t *testing.T) {
	m := NewMachine()
	m.Process(EvTransportClosed)
	if _, err := m.Process(EvAbortRequested); err == nil {
		t.Error("expected error aborting an already-closed association")
	}
}
