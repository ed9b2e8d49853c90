/*

An acceptor can receive two kinds of requests from leaders:
proposals and accept requests.

(1) It agrees to a proposal IFF the proposal is numbered strictly higher than any proposal
it has seen for that instance. Its agreement carries the value it has already accepted
for the instance (if any) together with the proposal under which it accepted it, so that the
leader can adopt that value instead of overwriting it.
(2) It accepts an accept request IFF it agreed to the same proposal and has not agreed to a
higher one since. Acceptance is broadcast to every leader, not only the sender, so that all
leaders independently count the accepts and learn the decided value.

An acceptor only needs to remember, per instance, the highest proposal it agreed to and the
value it accepted last.

*/

// Package paxos implements a simplified Multi-Paxos: message driven state machines for leaders and acceptors,
// per-instance bookkeeping, quorum counting and a heartbeat driven election with gap filling.
package paxos

import (
	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/proposal"
)

// acceptorClient is what an AcceptorProtocol needs from the node that owns it.
type acceptorClient interface {
	sendMessage(msg *messages.Message, dest string)
	leaders() []string
	// highestAgreedProposal returns the highest proposal seen for the instance.
	highestAgreedProposal(instanceID int) proposal.ID
	// instanceValue returns the value accepted for the instance (nil if none) and the proposal it was accepted under.
	instanceValue(instanceID int) ([]byte, proposal.ID)
	notify(p *AcceptorProtocol, msg *messages.Message)
}

// AcceptorProtocol is the acceptor side of one (instance, proposal) pair.
type AcceptorProtocol struct {
	client     acceptorClient
	state      State
	proposalID proposal.ID
	instanceID int
}

func newAcceptorProtocol(client acceptorClient) *AcceptorProtocol {
	return &AcceptorProtocol{
		client:     client,
		state:      StateUndefined,
		proposalID: proposal.Null,
		instanceID: -1,
	}
}

// State returns the current state.
func (p *AcceptorProtocol) State() State { return p.state }

// ProposalID returns the proposal this state machine is about.
func (p *AcceptorProtocol) ProposalID() proposal.ID { return p.proposalID }

// InstanceID returns the instance this state machine is about.
func (p *AcceptorProtocol) InstanceID() int { return p.instanceID }

// recvProposal compares the proposal against the highest one seen for the instance.
// When it is strictly higher an AcceptorAgree is sent back with the value already accepted for the instance;
// otherwise an AcceptorReject carrying the highest proposal seen is sent back.
func (p *AcceptorProtocol) recvProposal(msg *messages.Message) Result {
	if p.state != StateUndefined || msg.Command != messages.Propose {
		log.Warnf("[ACCEPTOR] -> Unexpected %s in state %s, ignoring.", msg.Command, p.state)
		return Ignored
	}
	p.proposalID = msg.Proposal()
	p.instanceID = msg.Instance()
	p.state = StateReceived

	highest := p.client.highestAgreedProposal(p.instanceID)
	if p.proposalID.IsGreaterThan(highest) {
		p.state = StateAgreed

		value, acceptedID := p.client.instanceValue(p.instanceID)
		seq := highest
		if value != nil {
			seq = acceptedID
		}
		reply := messages.New(messages.AcceptorAgree)
		reply.CopyAsReply(msg)
		reply.Value = value
		reply.Sequence = messages.IDPtr(seq)
		log.Debugf("[ACCEPTOR] -> Proposal %s is the highest for instance %d; agreeing (value: %q, seq: %s).", p.proposalID, p.instanceID, value, seq)
		p.client.sendMessage(reply, msg.Source)
	} else {
		// too late, we already told someone else we'd do it
		p.state = StateRejected

		reply := messages.New(messages.AcceptorReject)
		reply.CopyAsReply(msg)
		reply.Sequence = messages.IDPtr(highest)
		log.Debugf("[ACCEPTOR] -> Proposal %s is not strictly higher than %s for instance %d; rejecting.", p.proposalID, highest, p.instanceID)
		p.client.sendMessage(reply, msg.Source)
	}
	return Transitioned
}

// transition handles an Accept for the proposal this acceptor agreed to.
func (p *AcceptorProtocol) transition(msg *messages.Message) Result {
	if p.state != StateAgreed || msg.Command != messages.Accept {
		// delays and duplicates make this expected, not an error
		log.Debugf("[ACCEPTOR] -> Unexpected %s in state %s for proposal %s, ignoring.", msg.Command, p.state, p.proposalID)
		return Ignored
	}

	command := messages.AcceptorAccept
	if highest := p.client.highestAgreedProposal(p.instanceID); highest.IsGreaterThan(p.proposalID) {
		// agreed to a higher proposal in the meantime, accepting would break that promise
		log.Debugf("[ACCEPTOR] -> Proposal %s was superseded by %s for instance %d; unaccepting.", p.proposalID, highest, p.instanceID)
		command = messages.AcceptorUnaccept
		p.state = StateUnaccepted
	} else {
		p.state = StateAccepted
	}

	reply := messages.New(command)
	reply.CopyAsReply(msg)
	for _, leader := range p.client.leaders() {
		p.client.sendMessage(reply, leader)
	}

	if p.state == StateAccepted {
		p.client.notify(p, msg)
	}
	return Transitioned
}
