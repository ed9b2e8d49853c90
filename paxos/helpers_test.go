package paxos

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go-multipaxos/paxos/config"
	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/proposal"
	"go-multipaxos/paxos/queries"
)

// router is a deterministic in-process network: sent messages are queued and only delivered by deliverAll.
type router struct {
	mu    sync.Mutex
	queue []*messages.Message
	sent  []*messages.Message

	leaders   map[string]*Leader
	acceptors map[string]*Acceptor

	// drop, when set, discards the messages it returns true for.
	drop func(msg *messages.Message) bool
	// duplicate delivers every message twice.
	duplicate bool
}

func newRouter() *router {
	return &router{
		leaders:   make(map[string]*Leader),
		acceptors: make(map[string]*Acceptor),
	}
}

type routerTransport struct {
	r    *router
	addr string
}

func (t *routerTransport) Address() string { return t.addr }

func (t *routerTransport) Send(msg *messages.Message) error {
	m := msg.Clone()
	m.Source = t.addr
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.queue = append(t.r.queue, m)
	t.r.sent = append(t.r.sent, m)
	return nil
}

func (t *routerTransport) Receive() (*messages.Message, error) { return nil, nil }

func (t *routerTransport) Stop() error { return nil }

func (r *router) transport(addr string) *routerTransport {
	return &routerTransport{r: r, addr: addr}
}

func (r *router) pop() *messages.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg
}

// deliverAll delivers queued messages, including the ones sent while delivering, until the queue is empty.
func (r *router) deliverAll(t *testing.T) int {
	t.Helper()
	delivered := 0
	for msg := r.pop(); msg != nil; msg = r.pop() {
		delivered++
		if delivered > 100000 {
			t.Fatal("messages keep flowing, the cluster does not settle")
		}
		if r.drop != nil && r.drop(msg) {
			continue
		}
		r.deliver(t, msg)
		if r.duplicate {
			r.deliver(t, msg.Clone())
		}
	}
	return delivered
}

func (r *router) deliver(t *testing.T, msg *messages.Message) {
	t.Helper()
	if l, ok := r.leaders[msg.Destination]; ok {
		l.Deliver(msg)
		return
	}
	if a, ok := r.acceptors[msg.Destination]; ok {
		if err := a.Deliver(msg); err != nil {
			t.Errorf("acceptor %s: %v", msg.Destination, err)
		}
		return
	}
	t.Fatalf("no node at %q", msg.Destination)
}

// sentBy returns the messages sent from @addr with command @c.
func (r *router) sentBy(addr string, c messages.Command) []*messages.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*messages.Message
	for _, m := range r.sent {
		if m.Source == addr && m.Command == c {
			out = append(out, m)
		}
	}
	return out
}

func (r *router) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func leaderAddr(i int) string   { return fmt.Sprintf("leader-%d", i) }
func acceptorAddr(i int) string { return fmt.Sprintf("acceptor-%d", i) }

func clusterConf(pid int, addr string, nLeaders, nAcceptors int) *config.Conf {
	conf := &config.Conf{PID: pid, ADDRESS: addr}
	for i := 1; i <= nLeaders; i++ {
		conf.LEADERS = append(conf.LEADERS, leaderAddr(i))
	}
	for i := 1; i <= nAcceptors; i++ {
		conf.ACCEPTORS = append(conf.ACCEPTORS, acceptorAddr(i))
	}
	conf.FillEmptyFields()
	return conf
}

// testCluster is a set of leaders and acceptors wired through a router. Leader i has PID i.
type testCluster struct {
	*router
	leaderList   []*Leader
	acceptorList []*Acceptor
}

// newTestCluster builds the cluster; the leaders listed in @primaries start as primary.
func newTestCluster(nLeaders, nAcceptors int, primaries ...int) *testCluster {
	c := &testCluster{router: newRouter()}
	isPrimary := make(map[int]bool)
	for _, p := range primaries {
		isPrimary[p] = true
	}
	for i := 1; i <= nLeaders; i++ {
		conf := clusterConf(i, leaderAddr(i), nLeaders, nAcceptors)
		conf.PRIMARY = isPrimary[i]
		l := NewLeader(conf, c.transport(leaderAddr(i)), queries.NewMemoryStore())
		c.leaders[leaderAddr(i)] = l
		c.leaderList = append(c.leaderList, l)
	}
	for i := 1; i <= nAcceptors; i++ {
		conf := clusterConf(100+i, acceptorAddr(i), nLeaders, nAcceptors)
		conf.ROLE = config.RoleAcceptor
		a := NewAcceptor(conf, c.transport(acceptorAddr(i)), queries.NewMemoryStore())
		c.acceptors[acceptorAddr(i)] = a
		c.acceptorList = append(c.acceptorList, a)
	}
	return c
}

func (c *testCluster) leader(i int) *Leader     { return c.leaderList[i-1] }
func (c *testCluster) acceptor(i int) *Acceptor { return c.acceptorList[i-1] }

// checkAgreement fails the test if two acceptors accepted different values for @instanceID.
func (c *testCluster) checkAgreement(t *testing.T, instanceID int) {
	t.Helper()
	var first []byte
	for _, a := range c.acceptorList {
		v, ok := a.AcceptedValue(instanceID)
		if !ok {
			continue
		}
		if first == nil {
			first = v
			continue
		}
		if string(v) != string(first) {
			t.Errorf("instance %d: acceptors accepted both %q and %q", instanceID, first, v)
		}
	}
}

// reply builds an acceptor reply as the transport would hand it to a leader.
func reply(c messages.Command, src string, id proposal.ID, instanceID int, value []byte, seq *proposal.ID) *messages.Message {
	msg := messages.New(c)
	msg.ProposalID = messages.IDPtr(id)
	msg.InstanceID = messages.IntPtr(instanceID)
	msg.Value = value
	msg.Source = src
	msg.Sequence = seq
	return msg
}

// eventually polls @cond until it holds or @timeout elapses.
func eventually(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
