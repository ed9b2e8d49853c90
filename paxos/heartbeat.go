package paxos

import (
	"time"

	"go-multipaxos/paxos/messages"
)

// heartbeatQueueSize bounds the heartbeats waiting for the listener; extra ones are dropped.
const heartbeatQueueSize = 64

// heartbeatListener receives the heartbeats forwarded by the receive loop.
type heartbeatListener struct {
	queue chan *messages.Message
}

func newHeartbeatListener() *heartbeatListener {
	return &heartbeatListener{queue: make(chan *messages.Message, heartbeatQueueSize)}
}

// addHeartbeat enqueues @msg without blocking the receive loop.
func (h *heartbeatListener) addHeartbeat(msg *messages.Message) {
	select {
	case h.queue <- msg:
	default:
		log.Debugf("[HEARTBEAT] -> Queue full, dropping heartbeat from %d.", msg.SenderID)
	}
}

// run waits up to @timeout for each heartbeat: @action is called on receipt, @onTimeout when none arrived.
func (h *heartbeatListener) run(timeout time.Duration, done <-chan struct{}, action func(*messages.Message), onTimeout func()) error {
	for {
		select {
		case <-done:
			return nil
		case msg := <-h.queue:
			action(msg)
		case <-time.After(timeout):
			onTimeout()
		}
	}
}

// runHeartbeatSender calls @send every @interval until @done is closed.
func runHeartbeatSender(interval time.Duration, done <-chan struct{}, send func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			send()
		}
	}
}

// sendHeartbeats tells every other leader that this one is primary.
func (l *Leader) sendHeartbeats() {
	if !l.IsPrimary() {
		return
	}
	msg := messages.New(messages.Heartbeat)
	for _, peer := range l.peers {
		sendTo(l.transport, l.pid, msg, peer)
	}
}

// heartbeatAction steps down when the heartbeat comes from a leader with a higher identity.
func (l *Leader) heartbeatAction(msg *messages.Message) {
	if msg.SenderID > l.pid {
		log.Debugf("[HEARTBEAT] -> %s heard from %d.", l.tag, msg.SenderID)
		l.SetPrimary(false)
	}
}

// heartbeatTimedOut asserts this leader primary; nobody with a higher identity is around.
func (l *Leader) heartbeatTimedOut() {
	l.SetPrimary(true)
}
