package paxos

import (
	"go-multipaxos/paxos/proposal"
)

// State is the state of a protocol state machine, on either side.
type State int

const (
	StateUndefined  State = iota // StateUndefined is the initial state of every state machine.
	StateReceived                // StateReceived: the acceptor is looking at a proposal.
	StateProposed                // StateProposed: the leader broadcast a proposal and waits for agreements.
	StateAgreed                  // StateAgreed: a quorum (leader) or this acceptor agreed to the proposal.
	StateRejected                // StateRejected is terminal.
	StateAccepted                // StateAccepted is terminal.
	StateUnaccepted              // StateUnaccepted is terminal.
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "Undefined"
	case StateReceived:
		return "Received"
	case StateProposed:
		return "Proposed"
	case StateAgreed:
		return "Agreed"
	case StateRejected:
		return "Rejected"
	case StateAccepted:
		return "Accepted"
	case StateUnaccepted:
		return "Unaccepted"
	}
	return "INVALID"
}

// Terminal reports whether no message can move the state machine any further.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateAccepted || s == StateUnaccepted
}

// Result tells the caller what a message did to a state machine.
type Result int

const (
	Ignored      Result = iota // Ignored: unexpected (state, command) pair or duplicate, nothing changed.
	Counted                    // Counted: the reply was counted but no quorum was crossed.
	Transitioned               // Transitioned: the state machine moved to a new state.
)

func (r Result) String() string {
	switch r {
	case Ignored:
		return "Ignored"
	case Counted:
		return "Counted"
	case Transitioned:
		return "Transitioned"
	}
	return "INVALID"
}

// protocol is implemented by both AcceptorProtocol and LeaderProtocol.
type protocol interface {
	State() State
	ProposalID() proposal.ID
}

// InstanceRecord is a bookkeeping type which keeps a record of all the proposals seen or undertaken for a given
// instance, both on the acceptor and on the leader.
// It is owned by the node that created it and only touched while holding that node's lock.
type InstanceRecord struct {
	protocols  map[proposal.ID]protocol
	highestID  proposal.ID
	value      []byte
	acceptedID proposal.ID // acceptedID is the proposal under which value was accepted (acceptors only)
	decided    bool
}

func newInstanceRecord() *InstanceRecord {
	return &InstanceRecord{
		protocols:  make(map[proposal.ID]protocol),
		highestID:  proposal.Null,
		acceptedID: proposal.Null,
	}
}

// addProtocol registers @p and raises the highest proposal seen for this instance.
func (r *InstanceRecord) addProtocol(p protocol) {
	r.protocols[p.ProposalID()] = p
	r.highestID = proposal.Max(r.highestID, p.ProposalID())
}

func (r *InstanceRecord) getProtocol(id proposal.ID) (protocol, bool) {
	p, ok := r.protocols[id]
	return p, ok
}

// cleanProtocols drops the state machines that reached Accepted; they are fully resolved.
// Rejected and Unaccepted ones are kept.
func (r *InstanceRecord) cleanProtocols() int {
	removed := 0
	for id, p := range r.protocols {
		if p.State() == StateAccepted {
			log.Debugf("[GC] -> Deleting protocol %s.", id)
			delete(r.protocols, id)
			removed++
		}
	}
	return removed
}

// HighestID returns the highest proposal seen for this instance.
func (r *InstanceRecord) HighestID() proposal.ID { return r.highestID }

// Value returns the value recorded for this instance, nil if none.
func (r *InstanceRecord) Value() []byte { return r.value }

// Decided reports whether a quorum accepted a value for this instance.
func (r *InstanceRecord) Decided() bool { return r.decided }
