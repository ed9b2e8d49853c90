package paxos

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"go-multipaxos/paxos/config"
	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/proposal"
	"go-multipaxos/paxos/queries"
	"go-multipaxos/paxos/transport"
)

// ErrUnknownProposal is returned when a transition message does not follow a proposal this acceptor received.
var ErrUnknownProposal = errors.New("no proposal received for this instance and proposal id")

// Acceptor owns the instance records of an acceptor node and dispatches inbound messages to its state machines.
type Acceptor struct {
	pid         int
	tag         string
	leaderAddrs []string
	transport   transport.Transport
	store       queries.Store

	mu        sync.Mutex
	instances map[int]*InstanceRecord

	failed int32

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAcceptor builds an acceptor answering to every leader listed in @conf.
// Accepted values are mirrored into @store.
func NewAcceptor(conf *config.Conf, t transport.Transport, store queries.Store) *Acceptor {
	return &Acceptor{
		pid:         conf.PID,
		tag:         fmt.Sprintf("[ACCEPTOR %s]", t.Address()),
		leaderAddrs: conf.LEADERS,
		transport:   t,
		store:       store,
		instances:   make(map[int]*InstanceRecord),
		done:        make(chan struct{}),
	}
}

// Start runs the receive loop.
func (a *Acceptor) Start() {
	pump := &messagePump{transport: a.transport, done: a.done}
	runLoop(&a.wg, a.tag, "message pump", func() error {
		return pump.run(func(msg *messages.Message) {
			if msg == nil {
				return
			}
			if err := a.Deliver(msg); err != nil {
				log.Errorf("%s -> %v", a.tag, err)
			}
		})
	})
}

// Stop aborts the receive loop and waits for it to exit.
func (a *Acceptor) Stop() {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	_ = a.transport.Stop()
	a.wg.Wait()
}

// Fail makes the acceptor drop every inbound message, simulating a crash without tearing down the receive path.
func (a *Acceptor) Fail() {
	atomic.StoreInt32(&a.failed, 1)
	log.Infof("%s -> Failing.", a.tag)
}

// Recover undoes Fail.
func (a *Acceptor) Recover() {
	atomic.StoreInt32(&a.failed, 0)
	log.Infof("%s -> Recovering.", a.tag)
}

// Failed reports whether the acceptor is currently dropping messages.
func (a *Acceptor) Failed() bool {
	return atomic.LoadInt32(&a.failed) == 1
}

// Deliver is the entry point of the receive loop: failure means ignored and lost messages.
func (a *Acceptor) Deliver(msg *messages.Message) error {
	if a.Failed() {
		log.Debugf("%s -> Failed, dropping %s.", a.tag, msg)
		return nil
	}
	return a.Dispatch(msg)
}

// Dispatch hands @msg to the right state machine.
// A Propose creates a fresh state machine; any other message must follow a proposal this acceptor received,
// ErrUnknownProposal is returned otherwise.
func (a *Acceptor) Dispatch(msg *messages.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	log.Debugf("%s -> Receiving %s.", a.tag, msg)
	instanceID := msg.Instance()

	if msg.Command == messages.Propose {
		record, ok := a.instances[instanceID]
		if !ok {
			record = newInstanceRecord()
			a.instances[instanceID] = record
		}
		if _, dup := record.getProtocol(msg.Proposal()); dup {
			log.Debugf("%s -> Duplicate proposal %s for instance %d, ignoring.", a.tag, msg.Proposal(), instanceID)
			return nil
		}
		p := newAcceptorProtocol(a)
		p.recvProposal(msg)
		record.addProtocol(p)
		return nil
	}

	record, ok := a.instances[instanceID]
	if !ok {
		return errors.Wrapf(ErrUnknownProposal, "%s for instance %d", msg.Command, instanceID)
	}
	p, ok := record.getProtocol(msg.Proposal())
	if !ok {
		return errors.Wrapf(ErrUnknownProposal, "%s for instance %d, proposal %s", msg.Command, instanceID, msg.Proposal())
	}
	p.(*AcceptorProtocol).transition(msg)
	return nil
}

// AcceptedValue returns the value accepted for @instanceID, if any.
func (a *Acceptor) AcceptedValue(instanceID int) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record, ok := a.instances[instanceID]
	if !ok || record.value == nil {
		return nil, false
	}
	return record.value, true
}

// protocolState returns the state of the state machine for (@instanceID, @id), StateUndefined if there is none.
func (a *Acceptor) protocolState(instanceID int, id proposal.ID) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	record, ok := a.instances[instanceID]
	if !ok {
		return StateUndefined
	}
	p, ok := record.getProtocol(id)
	if !ok {
		return StateUndefined
	}
	return p.State()
}

/*
# ========================================================= #
#        acceptorClient, called with a.mu held              #
# ========================================================= #
*/

func (a *Acceptor) sendMessage(msg *messages.Message, dest string) {
	sendTo(a.transport, a.pid, msg, dest)
}

func (a *Acceptor) leaders() []string {
	return a.leaderAddrs
}

func (a *Acceptor) highestAgreedProposal(instanceID int) proposal.ID {
	return a.instances[instanceID].highestID
}

func (a *Acceptor) instanceValue(instanceID int) ([]byte, proposal.ID) {
	record := a.instances[instanceID]
	return record.value, record.acceptedID
}

// notify is called by a state machine when it reaches Accepted; the value is recorded for external observation.
func (a *Acceptor) notify(p *AcceptorProtocol, msg *messages.Message) {
	if p.State() != StateAccepted {
		return
	}
	record := a.instances[p.InstanceID()]
	record.value = msg.Value
	record.acceptedID = p.ProposalID()

	log.Debugf("%s -> Accepted %q for instance %d under proposal %s.", a.tag, msg.Value, p.InstanceID(), p.ProposalID())
	if err := a.store.SetLearntValue(p.InstanceID(), msg.Value); err != nil {
		log.Warnf("%s -> Could not mirror instance %d: %v", a.tag, p.InstanceID(), err)
	}
}
