// Package messages exposes the wire record exchanged between leaders and acceptors.
// Messages are marshalled (to json) before being sent to remote nodes and unmarshalled back on receipt.
package messages

import (
	"fmt"

	"go-multipaxos/paxos/proposal"
)

// Command tells the receiver what a message is about.
type Command int

const (
	Propose          Command = iota // Propose is sent by a leader to every acceptor to open a round.
	AcceptorAgree                   // AcceptorAgree is an acceptor's positive answer to a Propose.
	AcceptorReject                  // AcceptorReject is an acceptor's negative answer to a Propose.
	AcceptorAccept                  // AcceptorAccept is broadcast by an acceptor to every leader once it accepted a value.
	AcceptorUnaccept                // AcceptorUnaccept is broadcast by an acceptor that refused an Accept.
	Accept                          // Accept is sent by a leader that reached an agreement quorum.
	ExternalPropose                 // ExternalPropose carries a client value to the primary leader.
	Heartbeat                       // Heartbeat is exchanged among leaders to elect the primary.
)

func (c Command) String() string {
	switch c {
	case Propose:
		return "Propose"
	case AcceptorAgree:
		return "AcceptorAgree"
	case AcceptorReject:
		return "AcceptorReject"
	case AcceptorAccept:
		return "AcceptorAccept"
	case AcceptorUnaccept:
		return "AcceptorUnaccept"
	case Accept:
		return "Accept"
	case ExternalPropose:
		return "ExternalPropose"
	case Heartbeat:
		return "Heartbeat"
	}
	return "INVALID"
}

// Message is the datagram payload.
// Nil pointers and a nil Value are the null values of the wire schema.
type Message struct {
	Command     Command      `json:"command"`
	ProposalID  *proposal.ID `json:"proposal_id"` // ProposalID is absent for Heartbeat and ExternalPropose.
	InstanceID  *int         `json:"instance_id"` // InstanceID is absent only for Heartbeat.
	Value       []byte       `json:"value"`       // Value is the opaque application payload.
	Source      string       `json:"source"`      // Source is set by the transport layer.
	Destination string       `json:"destination"`
	Sequence    *proposal.ID `json:"sequence"`  // Sequence is only present on acceptor replies; see AcceptorProtocol.
	SenderID    int          `json:"sender_id"` // SenderID is the numeric identity of the sending node.
}

// New returns an empty message for the given command.
func New(c Command) *Message {
	return &Message{Command: c}
}

// CopyAsReply preserves the proposal ID, instance ID and value of @m and swaps source and destination.
// The command and the sequence are left untouched.
func (msg *Message) CopyAsReply(m *Message) {
	msg.ProposalID = m.ProposalID
	msg.InstanceID = m.InstanceID
	msg.Value = m.Value
	msg.Destination = m.Source
	msg.Source = m.Destination
}

// Clone returns a shallow copy of the message, used when fanning out the same message to many destinations.
// The pointed-to IDs and the value are shared and must be treated as read-only.
func (msg *Message) Clone() *Message {
	c := *msg
	return &c
}

// Instance returns the instance ID, or -1 when the message does not carry one.
func (msg *Message) Instance() int {
	if msg.InstanceID == nil {
		return -1
	}
	return *msg.InstanceID
}

// Proposal returns the proposal ID, or proposal.Null when the message does not carry one.
func (msg *Message) Proposal() proposal.ID {
	if msg.ProposalID == nil {
		return proposal.Null
	}
	return *msg.ProposalID
}

func (msg *Message) String() string {
	return fmt.Sprintf("{%s instance=%d proposal=%s value=%q %s->%s}",
		msg.Command, msg.Instance(), msg.Proposal(), msg.Value, msg.Source, msg.Destination)
}

// IntPtr is a helper for filling in InstanceID.
func IntPtr(i int) *int {
	return &i
}

// IDPtr is a helper for filling in ProposalID and Sequence.
func IDPtr(id proposal.ID) *proposal.ID {
	return &id
}
