package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go-multipaxos/paxos/messages"
)

// inboxSize bounds the number of undelivered messages per node; beyond that messages are dropped, like a full socket buffer.
const inboxSize = 4096

// Network is an in-process registry of inboxes. Every MemoryTransport created by the same Network can reach the others.
// Loss and duplication can be simulated with SetDropRate and SetDuplicateRate.
type Network struct {
	mu      sync.RWMutex
	inboxes map[string]chan *messages.Message

	rndMu    sync.Mutex
	rnd      *rand.Rand
	dropRate float64
	dupRate  float64
}

// NewNetwork returns an empty, lossless network.
func NewNetwork() *Network {
	return &Network{
		inboxes: make(map[string]chan *messages.Message),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetDropRate makes the network lose each message with probability @p.
func (n *Network) SetDropRate(p float64) {
	n.rndMu.Lock()
	defer n.rndMu.Unlock()
	n.dropRate = p
}

// SetDuplicateRate makes the network deliver each message twice with probability @p.
func (n *Network) SetDuplicateRate(p float64) {
	n.rndMu.Lock()
	defer n.rndMu.Unlock()
	n.dupRate = p
}

// copies decides how many times a message is delivered: 0, 1 or 2.
func (n *Network) copies() int {
	n.rndMu.Lock()
	defer n.rndMu.Unlock()
	if n.dropRate > 0 && n.rnd.Float64() < n.dropRate {
		return 0
	}
	if n.dupRate > 0 && n.rnd.Float64() < n.dupRate {
		return 2
	}
	return 1
}

// AddNode registers @addr and returns its transport.
func (n *Network) AddNode(addr string, pollTimeout time.Duration) *MemoryTransport {
	inbox := make(chan *messages.Message, inboxSize)
	n.mu.Lock()
	n.inboxes[addr] = inbox
	n.mu.Unlock()
	return &MemoryTransport{
		network:     n,
		addr:        addr,
		inbox:       inbox,
		pollTimeout: pollTimeout,
		done:        make(chan struct{}),
	}
}

func (n *Network) remove(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inboxes, addr)
}

func (n *Network) deliver(msg *messages.Message) error {
	n.mu.RLock()
	inbox, ok := n.inboxes[msg.Destination]
	n.mu.RUnlock()
	if !ok {
		return errors.Errorf("unknown destination %s", msg.Destination)
	}

	for i := n.copies(); i > 0; i-- {
		select {
		case inbox <- msg.Clone():
		default:
			log.Warnf("[TRANSPORT] -> Inbox of %s is full, dropping %s.", msg.Destination, msg.Command)
		}
	}
	return nil
}

// MemoryTransport implements the Transport interface over a Network.
type MemoryTransport struct {
	network     *Network
	addr        string
	inbox       chan *messages.Message
	pollTimeout time.Duration

	once sync.Once
	done chan struct{}
}

// Address implements the Transport interface.
func (t *MemoryTransport) Address() string {
	return t.addr
}

// Send implements the Transport interface.
func (t *MemoryTransport) Send(msg *messages.Message) error {
	msg.Source = t.addr
	return t.network.deliver(msg)
}

// Receive implements the Transport interface.
func (t *MemoryTransport) Receive() (*messages.Message, error) {
	timer := time.NewTimer(t.pollTimeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return nil, ErrStopped
	case msg := <-t.inbox:
		return msg, nil
	case <-timer.C:
		return nil, nil
	}
}

// Stop implements the Transport interface. The node becomes unreachable.
func (t *MemoryTransport) Stop() error {
	t.once.Do(func() {
		t.network.remove(t.addr)
		close(t.done)
	})
	return nil
}
