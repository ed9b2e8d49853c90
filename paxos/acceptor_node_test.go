package paxos

import (
	"testing"

	"github.com/pkg/errors"

	"go-multipaxos/paxos/config"
	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/proposal"
	"go-multipaxos/paxos/queries"
)

func newTestAcceptor() (*Acceptor, *router, queries.Store) {
	r := newRouter()
	conf := clusterConf(101, acceptorAddr(1), 2, 3)
	conf.ROLE = config.RoleAcceptor
	store := queries.NewMemoryStore()
	return NewAcceptor(conf, r.transport(acceptorAddr(1)), store), r, store
}

func TestAcceptor_proposalOrdering(t *testing.T) {
	a, r, _ := newTestAcceptor()

	steps := []struct {
		id    proposal.ID
		agree bool
	}{
		{id: proposal.ID{Pid: 1, Seq: 3}, agree: true},
		{id: proposal.ID{Pid: 2, Seq: 1}, agree: false},
		{id: proposal.ID{Pid: 1, Seq: 5}, agree: true},
		{id: proposal.ID{Pid: 2, Seq: 5}, agree: true},
		{id: proposal.ID{Pid: 1, Seq: 5}, agree: false}, // duplicate, ignored
		{id: proposal.ID{Pid: 1, Seq: 4}, agree: false},
	}
	for i, s := range steps {
		before := len(r.sentBy(acceptorAddr(1), messages.AcceptorAgree))
		if err := a.Dispatch(proposeMsg(s.id, 1, "A")); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		agreed := len(r.sentBy(acceptorAddr(1), messages.AcceptorAgree)) > before
		if agreed != s.agree {
			t.Errorf("step %d: proposal %s agreed = %v, want %v", i, s.id, agreed, s.agree)
		}
	}
	if got := len(r.sentBy(acceptorAddr(1), messages.AcceptorReject)); got != 2 {
		t.Errorf("sent %d rejections, want 2", got)
	}
}

func TestAcceptor_acceptIsRecordedAndBroadcast(t *testing.T) {
	a, r, store := newTestAcceptor()
	id := proposal.ID{Pid: 1, Seq: 1}

	if err := a.Dispatch(proposeMsg(id, 4, "A")); err != nil {
		t.Fatal(err)
	}
	if err := a.Dispatch(acceptMsg(id, 4, "A")); err != nil {
		t.Fatal(err)
	}

	if v, ok := a.AcceptedValue(4); !ok || string(v) != "A" {
		t.Errorf("AcceptedValue(4) = %q, %v", v, ok)
	}
	if v, ok, err := store.GetLearntValue(4); err != nil || !ok || string(v) != "A" {
		t.Errorf("store has %q, %v, %v", v, ok, err)
	}
	if a.protocolState(4, id) != StateAccepted {
		t.Errorf("protocol state = %s", a.protocolState(4, id))
	}

	accepts := r.sentBy(acceptorAddr(1), messages.AcceptorAccept)
	dests := map[string]bool{}
	for _, m := range accepts {
		dests[m.Destination] = true
	}
	if len(accepts) != 2 || !dests[leaderAddr(1)] || !dests[leaderAddr(2)] {
		t.Errorf("accepts sent to %v, want every leader", dests)
	}

	// the next proposal for the instance learns about the accepted value
	if err := a.Dispatch(proposeMsg(proposal.ID{Pid: 2, Seq: 2}, 4, "B")); err != nil {
		t.Fatal(err)
	}
	agrees := r.sentBy(acceptorAddr(1), messages.AcceptorAgree)
	last := agrees[len(agrees)-1]
	if string(last.Value) != "A" || last.Sequence == nil || *last.Sequence != id {
		t.Errorf("agreement carries %q at %v, want %q at %s", last.Value, last.Sequence, "A", id)
	}
}

func TestAcceptor_unknownProposal(t *testing.T) {
	a, _, _ := newTestAcceptor()

	err := a.Dispatch(acceptMsg(proposal.ID{Pid: 1, Seq: 1}, 1, "A"))
	if errors.Cause(err) != ErrUnknownProposal {
		t.Errorf("accept for an unknown instance: err = %v", err)
	}

	if err := a.Dispatch(proposeMsg(proposal.ID{Pid: 1, Seq: 1}, 1, "A")); err != nil {
		t.Fatal(err)
	}
	err = a.Dispatch(acceptMsg(proposal.ID{Pid: 1, Seq: 2}, 1, "A"))
	if errors.Cause(err) != ErrUnknownProposal {
		t.Errorf("accept for an unknown proposal: err = %v", err)
	}
}

func TestAcceptor_failAndRecover(t *testing.T) {
	a, r, _ := newTestAcceptor()

	a.Fail()
	if !a.Failed() {
		t.Fatal("Failed() = false after Fail()")
	}
	if err := a.Deliver(proposeMsg(proposal.ID{Pid: 1, Seq: 1}, 1, "A")); err != nil {
		t.Fatal(err)
	}
	if r.pending() != 0 {
		t.Errorf("a failed acceptor answered")
	}
	if a.protocolState(1, proposal.ID{Pid: 1, Seq: 1}) != StateUndefined {
		t.Errorf("a failed acceptor recorded the proposal")
	}

	a.Recover()
	if err := a.Deliver(proposeMsg(proposal.ID{Pid: 1, Seq: 1}, 1, "A")); err != nil {
		t.Fatal(err)
	}
	if r.pending() != 1 {
		t.Errorf("a recovered acceptor sent %d messages, want 1", r.pending())
	}
}
