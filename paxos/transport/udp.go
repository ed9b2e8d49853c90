package transport

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"go-multipaxos/paxos/messages"
)

// maxDatagram is the largest payload we are willing to read.
const maxDatagram = 65535

// UDPTransport sends json encoded messages as UDP datagrams.
type UDPTransport struct {
	conn        *net.UDPConn
	addr        string
	pollTimeout time.Duration

	mu       sync.Mutex
	resolved map[string]*net.UDPAddr

	stopped int32
	buf     []byte
}

// NewUDPTransport binds @addr. Receive waits at most @pollTimeout for a datagram.
func NewUDPTransport(addr string, pollTimeout time.Duration) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", addr)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &UDPTransport{
		conn:        conn,
		addr:        conn.LocalAddr().String(),
		pollTimeout: pollTimeout,
		resolved:    make(map[string]*net.UDPAddr),
		buf:         make([]byte, maxDatagram),
	}, nil
}

// Address implements the Transport interface.
// When bound to port 0 this is the port picked by the kernel.
func (t *UDPTransport) Address() string {
	return t.addr
}

func (t *UDPTransport) resolve(addr string) (*net.UDPAddr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.resolved[addr]; ok {
		return a, nil
	}
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", addr)
	}
	t.resolved[addr] = a
	return a, nil
}

// Send implements the Transport interface.
func (t *UDPTransport) Send(msg *messages.Message) error {
	msg.Source = t.addr
	dst, err := t.resolve(msg.Destination)
	if err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshalling message")
	}
	if _, err := t.conn.WriteToUDP(b, dst); err != nil {
		return errors.Wrapf(err, "sending to %s", msg.Destination)
	}
	return nil
}

// Receive implements the Transport interface.
// Datagrams that are not valid messages are logged and dropped.
// Receive must not be called concurrently.
func (t *UDPTransport) Receive() (*messages.Message, error) {
	if atomic.LoadInt32(&t.stopped) == 1 {
		return nil, ErrStopped
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.pollTimeout)); err != nil {
		return nil, errors.Wrap(err, "setting read deadline")
	}

	n, from, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if atomic.LoadInt32(&t.stopped) == 1 {
			return nil, ErrStopped
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading datagram")
	}

	msg := &messages.Message{}
	if err := json.Unmarshal(t.buf[:n], msg); err != nil {
		log.Warnf("[TRANSPORT] -> Dropping malformed datagram from %s: %v", from, err)
		return nil, nil
	}
	return msg, nil
}

// Stop implements the Transport interface.
func (t *UDPTransport) Stop() error {
	if !atomic.CompareAndSwapInt32(&t.stopped, 0, 1) {
		return nil
	}
	return t.conn.Close()
}
