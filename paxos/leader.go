package paxos

import (
	"fmt"
	"sync"
	"time"

	"go-multipaxos/paxos/config"
	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/proposal"
	"go-multipaxos/paxos/queries"
	"go-multipaxos/paxos/transport"
)

// Leader originates proposals while primary and learns the decided values by counting the acceptors' accepts.
type Leader struct {
	pid           int
	tag           string
	transport     transport.Transport
	store         queries.Store
	peers         []string
	acceptorAddrs []string
	quorum        int

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	gapFillInterval   time.Duration

	mu            sync.Mutex
	instances     map[int]*InstanceRecord
	proposalCount int
	highest       int
	numAccepted   int
	lastGapFill   time.Time

	primaryMu sync.RWMutex
	primary   bool

	listener *heartbeatListener
	now      func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLeader builds a leader from @conf. It starts as primary only if conf.PRIMARY is set,
// otherwise it becomes primary once no heartbeat was heard for HEARTBEAT_TIMEOUT.
func NewLeader(conf *config.Conf, t transport.Transport, store queries.Store) *Leader {
	l := &Leader{
		pid:               conf.PID,
		tag:               fmt.Sprintf("[LEADER %d]", conf.PID),
		transport:         t,
		store:             store,
		peers:             conf.PeerLeaders(),
		acceptorAddrs:     conf.ACCEPTORS,
		quorum:            conf.QUORUM,
		heartbeatInterval: conf.HEARTBEAT_INTERVAL,
		heartbeatTimeout:  conf.HEARTBEAT_TIMEOUT,
		gapFillInterval:   conf.GAP_FILL_INTERVAL,
		instances:         make(map[int]*InstanceRecord),
		primary:           conf.PRIMARY,
		listener:          newHeartbeatListener(),
		now:               time.Now,
		done:              make(chan struct{}),
	}
	if l.quorum == 0 {
		l.quorum = len(l.acceptorAddrs)/2 + 1
	}
	l.lastGapFill = l.now()
	return l
}

// Start runs the receive loop, the heartbeat sender and the heartbeat listener.
func (l *Leader) Start() {
	pump := &messagePump{transport: l.transport, done: l.done}
	runLoop(&l.wg, l.tag, "message pump", func() error {
		return pump.run(l.Deliver)
	})
	runLoop(&l.wg, l.tag, "heartbeat sender", func() error {
		return runHeartbeatSender(l.heartbeatInterval, l.done, l.sendHeartbeats)
	})
	runLoop(&l.wg, l.tag, "heartbeat listener", func() error {
		return l.listener.run(l.heartbeatTimeout, l.done, l.heartbeatAction, l.heartbeatTimedOut)
	})
}

// Stop aborts every loop and waits for them to exit.
func (l *Leader) Stop() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	_ = l.transport.Stop()
	l.wg.Wait()
}

// IsPrimary reports whether this leader currently believes it is the primary.
func (l *Leader) IsPrimary() bool {
	l.primaryMu.RLock()
	defer l.primaryMu.RUnlock()
	return l.primary
}

// SetPrimary changes the primary flag.
func (l *Leader) SetPrimary(primary bool) {
	l.primaryMu.Lock()
	changed := l.primary != primary
	l.primary = primary
	l.primaryMu.Unlock()

	if changed {
		if primary {
			log.Infof("%s -> Asserting myself primary.", l.tag)
		} else {
			log.Infof("%s -> Stepping down as primary.", l.tag)
		}
	}
}

// Deliver is the receive loop handler: nil means the poll timed out and runs the idle path.
func (l *Leader) Deliver(msg *messages.Message) {
	if msg == nil {
		l.idle()
		return
	}
	l.Dispatch(msg)
}

// Submit hands @value to this leader as if an ExternalPropose had been received.
// It returns false when this leader is not primary and the value was dropped.
func (l *Leader) Submit(value []byte) bool {
	msg := messages.New(messages.ExternalPropose)
	msg.Value = value
	return l.Dispatch(msg)
}

// NewProposal opens a round for @value on @instanceID, or on the next unused instance when @instanceID is 0.
// It returns the instance the proposal is about, -1 if @instanceID is negative.
func (l *Leader) NewProposal(value []byte, instanceID int) int {
	if instanceID < 0 {
		log.Errorf("%s -> Invalid instance %d, not proposing %q.", l.tag, instanceID, value)
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newProposal(value, instanceID)
}

// newProposal must be called with l.mu held. 0 allocates the next unused instance.
func (l *Leader) newProposal(value []byte, instanceID int) int {
	if instanceID == 0 {
		l.highest++
		instanceID = l.highest
	} else if instanceID > l.highest {
		l.highest = instanceID
	}

	l.proposalCount++
	id := proposal.ID{Pid: l.pid, Seq: l.proposalCount}

	record, ok := l.instances[instanceID]
	if !ok {
		record = newInstanceRecord()
		l.instances[instanceID] = record
	}

	log.Debugf("%s -> Proposing %q for instance %d with proposal %s.", l.tag, value, instanceID, id)
	p := newLeaderProtocol(l)
	p.propose(value, id, instanceID)
	record.addProtocol(p)
	return instanceID
}

// Dispatch routes @msg to the state machine it is about and reports whether it was handled.
// Accepts are always counted so that every leader learns the decided values; everything else
// is only looked at while primary.
func (l *Leader) Dispatch(msg *messages.Message) bool {
	if msg.Command == messages.Heartbeat {
		l.listener.addHeartbeat(msg)
		return true
	}

	primary := l.IsPrimary()

	l.mu.Lock()
	defer l.mu.Unlock()

	log.Debugf("%s -> Receiving %s.", l.tag, msg)

	switch msg.Command {
	case messages.ExternalPropose:
		if !primary {
			log.Debugf("%s -> Not primary, dropping external proposal %q.", l.tag, msg.Value)
			return false
		}
		l.newProposal(msg.Value, 0)
		return true

	case messages.AcceptorAccept:
		record, ok := l.instances[msg.Instance()]
		if !ok {
			record = newInstanceRecord()
			l.instances[msg.Instance()] = record
		}
		p, ok := record.getProtocol(msg.Proposal())
		if !ok {
			if record.decided {
				log.Debugf("%s -> Instance %d already decided, dropping late %s.", l.tag, msg.Instance(), msg.Command)
				return false
			}
			// somebody else's round, listen to it
			p = newListeningProtocol(l, msg)
			record.addProtocol(p)
		}
		return p.(*LeaderProtocol).transition(msg) != Ignored
	}

	if !primary {
		log.Debugf("%s -> Not primary, dropping %s.", l.tag, msg.Command)
		return false
	}
	record, ok := l.instances[msg.Instance()]
	if !ok {
		log.Debugf("%s -> No instance %d, dropping stale %s.", l.tag, msg.Instance(), msg.Command)
		return false
	}
	p, ok := record.getProtocol(msg.Proposal())
	if !ok {
		log.Debugf("%s -> No proposal %s for instance %d, dropping stale %s.", l.tag, msg.Proposal(), msg.Instance(), msg.Command)
		return false
	}
	return p.(*LeaderProtocol).transition(msg) != Ignored
}

/*
# ========================================================= #
#        leaderClient, called with l.mu held                #
# ========================================================= #
*/

func (l *Leader) sendMessage(msg *messages.Message, dest string) {
	sendTo(l.transport, l.pid, msg, dest)
}

func (l *Leader) acceptors() []string {
	return l.acceptorAddrs
}

func (l *Leader) quorumSize() int {
	return l.quorum
}

// notify is called by a state machine every time it transitions.
func (l *Leader) notify(p *LeaderProtocol, msg *messages.Message) {
	switch p.State() {
	case StateAccepted:
		l.learn(p.InstanceID(), p.Value())
	case StateRejected:
		l.retry(p)
	case StateUnaccepted:
		log.Debugf("%s -> Proposal %s for instance %d was unaccepted.", l.tag, p.ProposalID(), p.InstanceID())
	}
}

// retry re-proposes the candidate of a rejected round on the same instance, numbered past every rejecting proposal.
func (l *Leader) retry(p *LeaderProtocol) {
	if record, ok := l.instances[p.InstanceID()]; ok && record.decided {
		log.Debugf("%s -> Instance %d already decided, not retrying %s.", l.tag, p.InstanceID(), p.ProposalID())
		return
	}
	if hr := p.HighestRejected(); hr.Seq > l.proposalCount {
		l.proposalCount = hr.Seq
	}
	log.Debugf("%s -> Proposal %s for instance %d was rejected; retrying.", l.tag, p.ProposalID(), p.InstanceID())
	l.newProposal(p.Value(), p.InstanceID())
}
