package paxos

import (
	"testing"

	"go-multipaxos/paxos/proposal"
)

type stubProtocol struct {
	state State
	id    proposal.ID
}

func (s *stubProtocol) State() State            { return s.state }
func (s *stubProtocol) ProposalID() proposal.ID { return s.id }

func TestInstanceRecord_highestID(t *testing.T) {
	r := newInstanceRecord()
	if r.HighestID() != proposal.Null || r.Decided() || r.Value() != nil {
		t.Fatalf("fresh record = (%s, %v, %q)", r.HighestID(), r.Decided(), r.Value())
	}

	ids := []proposal.ID{{Pid: 1, Seq: 2}, {Pid: 2, Seq: 1}, {Pid: 1, Seq: 5}, {Pid: 3, Seq: 4}}
	want := []proposal.ID{{Pid: 1, Seq: 2}, {Pid: 1, Seq: 2}, {Pid: 1, Seq: 5}, {Pid: 1, Seq: 5}}
	for i, id := range ids {
		r.addProtocol(&stubProtocol{state: StateAgreed, id: id})
		if r.HighestID() != want[i] {
			t.Errorf("after adding %s: HighestID() = %s, want %s", id, r.HighestID(), want[i])
		}
		if _, ok := r.getProtocol(id); !ok {
			t.Errorf("protocol %s not registered", id)
		}
	}
}

func TestInstanceRecord_cleanProtocols(t *testing.T) {
	r := newInstanceRecord()
	states := []State{StateAccepted, StateRejected, StateUnaccepted, StateAccepted, StateAgreed}
	for i, s := range states {
		r.addProtocol(&stubProtocol{state: s, id: proposal.ID{Pid: 1, Seq: i + 1}})
	}

	if removed := r.cleanProtocols(); removed != 2 {
		t.Errorf("cleanProtocols() = %d, want 2", removed)
	}
	for i, s := range states {
		_, ok := r.getProtocol(proposal.ID{Pid: 1, Seq: i + 1})
		if ok == (s == StateAccepted) {
			t.Errorf("protocol in state %s: present = %v", s, ok)
		}
	}
	if r.HighestID() != (proposal.ID{Pid: 1, Seq: 5}) {
		t.Errorf("cleaning must not lower the highest proposal, got %s", r.HighestID())
	}
}

func TestState_Terminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateUndefined, false},
		{StateReceived, false},
		{StateProposed, false},
		{StateAgreed, false},
		{StateRejected, true},
		{StateAccepted, true},
		{StateUnaccepted, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
	if State(42).String() != "INVALID" {
		t.Errorf("unknown state prints %q", State(42).String())
	}
}
