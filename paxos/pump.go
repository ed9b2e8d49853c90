package paxos

import (
	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/transport"
)

// messagePump feeds the messages received by a transport to its owner.
type messagePump struct {
	transport transport.Transport
	done      <-chan struct{}
}

// run calls @handle for every received message, and with nil every time a poll elapses without one.
// It returns nil once aborted and the transport error otherwise.
func (p *messagePump) run(handle func(msg *messages.Message)) error {
	for {
		select {
		case <-p.done:
			return nil
		default:
		}

		msg, err := p.transport.Receive()
		if err == transport.ErrStopped {
			return nil
		}
		if err != nil {
			return err
		}
		handle(msg)
	}
}
