/*

# propose(v, n):
A leader chooses a new proposal numbered n and sends it to every acceptor. Each acceptor answers with
an agreement, carrying the value it has already accepted for the instance (if any), or a rejection.

# accept(n, v):
If the leader receives agreements from a majority of the acceptors, then it issues an accept request
with number n and value v, where v is the value carried by the highest numbered agreement, or its own
candidate if the agreements reported no value.

The acceptors broadcast their acceptances to every leader; a majority of acceptances for n means v is decided.

*/

package paxos

import (
	"bytes"

	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/proposal"
)

// leaderClient is what a LeaderProtocol needs from the node that owns it.
type leaderClient interface {
	sendMessage(msg *messages.Message, dest string)
	acceptors() []string
	quorumSize() int
	notify(p *LeaderProtocol, msg *messages.Message)
}

// LeaderProtocol is the leader side of one (instance, proposal) pair.
// Replies are counted once per acceptor, so duplicated datagrams never inflate a quorum.
type LeaderProtocol struct {
	client     leaderClient
	state      State
	proposalID proposal.ID
	instanceID int
	value      []byte

	agreed, rejected, accepted, unaccepted map[string]bool

	highestSeen     proposal.ID // highest sequence among the agreements carrying a value
	highestValue    []byte      // value carried by the agreement numbered highestSeen
	highestRejected proposal.ID // highest proposal reported by the rejections
}

func newLeaderProtocol(client leaderClient) *LeaderProtocol {
	return &LeaderProtocol{
		client:          client,
		state:           StateUndefined,
		proposalID:      proposal.Null,
		instanceID:      -1,
		agreed:          make(map[string]bool),
		rejected:        make(map[string]bool),
		accepted:        make(map[string]bool),
		unaccepted:      make(map[string]bool),
		highestSeen:     proposal.Null,
		highestRejected: proposal.Null,
	}
}

// newListeningProtocol builds a state machine for a proposal this leader did not issue, pinned in the
// waiting-for-accepts state, so that a leader can count the accepts of somebody else's round.
func newListeningProtocol(client leaderClient, msg *messages.Message) *LeaderProtocol {
	p := newLeaderProtocol(client)
	p.state = StateAgreed
	p.proposalID = msg.Proposal()
	p.instanceID = msg.Instance()
	p.value = msg.Value
	return p
}

// State returns the current state.
func (p *LeaderProtocol) State() State { return p.state }

// ProposalID returns the proposal this state machine is about.
func (p *LeaderProtocol) ProposalID() proposal.ID { return p.proposalID }

// InstanceID returns the instance this state machine is about.
func (p *LeaderProtocol) InstanceID() int { return p.instanceID }

// Value returns the candidate value; once Agreed it is the value sent in the accept request.
func (p *LeaderProtocol) Value() []byte { return p.value }

// HighestRejected returns the highest proposal reported by the rejections received so far.
func (p *LeaderProtocol) HighestRejected() proposal.ID { return p.highestRejected }

// Counts returns the agree, reject, accept and unaccept counters.
func (p *LeaderProtocol) Counts() (agree, reject, accept, unaccept int) {
	return len(p.agreed), len(p.rejected), len(p.accepted), len(p.unaccepted)
}

// propose stores the parameters and broadcasts a Propose to every acceptor.
func (p *LeaderProtocol) propose(value []byte, id proposal.ID, instanceID int) {
	p.proposalID = id
	p.instanceID = instanceID
	p.value = value

	msg := messages.New(messages.Propose)
	msg.ProposalID = messages.IDPtr(id)
	msg.InstanceID = messages.IntPtr(instanceID)
	msg.Value = value
	for _, acceptor := range p.client.acceptors() {
		p.client.sendMessage(msg, acceptor)
	}
	p.state = StateProposed
}

// transition runs the protocol like a simple state machine.
// It's not okay to error on unexpected inputs, due to message delays, so they are ignored.
func (p *LeaderProtocol) transition(msg *messages.Message) Result {
	switch p.state {
	case StateProposed:
		return p.transitionAsProposed(msg)
	case StateAgreed:
		return p.transitionAsAgreed(msg)
	}
	log.Debugf("[PROPOSER] -> %s received in state %s for proposal %s, ignoring.", msg.Command, p.state, p.proposalID)
	return Ignored
}

// count records the reply of @source in @set; false means a duplicate.
func count(set map[string]bool, source string) bool {
	if set[source] {
		return false
	}
	set[source] = true
	return true
}

func (p *LeaderProtocol) transitionAsProposed(msg *messages.Message) Result {
	quorum := p.client.quorumSize()

	switch msg.Command {
	case messages.AcceptorAgree:
		if !count(p.agreed, msg.Source) {
			return Ignored
		}
		// if every agreement is empty we can do what we like, otherwise we have to take the highest seen
		if msg.Value != nil && msg.Sequence != nil && msg.Sequence.IsGreaterThan(p.highestSeen) {
			p.highestSeen = *msg.Sequence
			p.highestValue = msg.Value
		}
		if len(p.agreed) < quorum {
			return Counted
		}

		if p.highestValue != nil {
			if !bytes.Equal(p.value, p.highestValue) {
				log.Infof("[PROPOSER] -> Instance %d already has value %q (seq %s); adopting it instead of %q.", p.instanceID, p.highestValue, p.highestSeen, p.value)
			}
			p.value = p.highestValue
		}
		p.state = StateAgreed

		accept := messages.New(messages.Accept)
		accept.CopyAsReply(msg)
		accept.Value = p.value
		for _, acceptor := range p.client.acceptors() {
			p.client.sendMessage(accept, acceptor)
		}
		p.client.notify(p, msg)
		return Transitioned

	case messages.AcceptorReject:
		if !count(p.rejected, msg.Source) {
			return Ignored
		}
		if msg.Sequence != nil {
			p.highestRejected = proposal.Max(p.highestRejected, *msg.Sequence)
		}
		if len(p.rejected) < quorum {
			return Counted
		}
		p.state = StateRejected
		p.client.notify(p, msg)
		return Transitioned
	}

	log.Debugf("[PROPOSER] -> %s received in state %s for proposal %s, ignoring.", msg.Command, p.state, p.proposalID)
	return Ignored
}

func (p *LeaderProtocol) transitionAsAgreed(msg *messages.Message) Result {
	quorum := p.client.quorumSize()

	switch msg.Command {
	case messages.AcceptorAccept:
		if !count(p.accepted, msg.Source) {
			return Ignored
		}
		if len(p.accepted) < quorum {
			return Counted
		}
		p.state = StateAccepted
		p.client.notify(p, msg)
		return Transitioned

	case messages.AcceptorUnaccept:
		if !count(p.unaccepted, msg.Source) {
			return Ignored
		}
		if len(p.unaccepted) < quorum {
			return Counted
		}
		p.state = StateUnaccepted
		p.client.notify(p, msg)
		return Transitioned
	}

	log.Debugf("[PROPOSER] -> %s received in state %s for proposal %s, ignoring.", msg.Command, p.state, p.proposalID)
	return Ignored
}
