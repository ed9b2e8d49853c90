package paxos

import (
	"sync/atomic"
	"testing"
	"time"

	"go-multipaxos/paxos/messages"
)

func TestHeartbeatListener_run(t *testing.T) {
	h := newHeartbeatListener()
	done := make(chan struct{})
	var timeouts, heard int32

	exited := make(chan error, 1)
	go func() {
		exited <- h.run(20*time.Millisecond, done,
			func(*messages.Message) { atomic.AddInt32(&heard, 1) },
			func() { atomic.AddInt32(&timeouts, 1) })
	}()

	eventually(t, time.Second, "a timeout", func() bool { return atomic.LoadInt32(&timeouts) > 0 })
	h.addHeartbeat(messages.New(messages.Heartbeat))
	eventually(t, time.Second, "the heartbeat", func() bool { return atomic.LoadInt32(&heard) == 1 })

	close(done)
	select {
	case err := <-exited:
		if err != nil {
			t.Errorf("run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestHeartbeatListener_fullQueueDoesNotBlock(t *testing.T) {
	h := newHeartbeatListener()
	for i := 0; i < heartbeatQueueSize+10; i++ {
		h.addHeartbeat(messages.New(messages.Heartbeat))
	}
	if len(h.queue) != heartbeatQueueSize {
		t.Errorf("queue holds %d heartbeats", len(h.queue))
	}
}

func TestLeader_heartbeatAction(t *testing.T) {
	tests := []struct {
		name   string
		sender int
		want   bool
	}{
		{name: "higher identity demotes", sender: 3, want: false},
		{name: "lower identity is ignored", sender: 1, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, _ := newTestLeader(2, true)
			hb := messages.New(messages.Heartbeat)
			hb.SenderID = tt.sender
			l.heartbeatAction(hb)
			if l.IsPrimary() != tt.want {
				t.Errorf("IsPrimary() = %v, want %v", l.IsPrimary(), tt.want)
			}
		})
	}

	l, _, _ := newTestLeader(1, false)
	l.heartbeatTimedOut()
	if !l.IsPrimary() {
		t.Error("a timed out listener must assert primary")
	}
}

func TestLeader_sendHeartbeats(t *testing.T) {
	l, r, _ := newTestLeader(1, false)

	l.sendHeartbeats()
	if got := len(r.sentBy(leaderAddr(1), messages.Heartbeat)); got != 0 {
		t.Errorf("a leader that is not primary sent %d heartbeats", got)
	}

	l.SetPrimary(true)
	l.sendHeartbeats()
	hbs := r.sentBy(leaderAddr(1), messages.Heartbeat)
	if len(hbs) != 1 || hbs[0].Destination != leaderAddr(2) || hbs[0].SenderID != 1 {
		t.Errorf("heartbeats = %v, want one to %s", hbs, leaderAddr(2))
	}
}

func TestRunHeartbeatSender(t *testing.T) {
	done := make(chan struct{})
	var ticks int32
	exited := make(chan error, 1)
	go func() {
		exited <- runHeartbeatSender(5*time.Millisecond, done, func() { atomic.AddInt32(&ticks, 1) })
	}()

	eventually(t, time.Second, "three ticks", func() bool { return atomic.LoadInt32(&ticks) >= 3 })
	close(done)
	if err := <-exited; err != nil {
		t.Errorf("runHeartbeatSender() = %v", err)
	}
}
