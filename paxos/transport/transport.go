// Package transport moves messages between nodes.
// Delivery is fire-and-forget: messages may be lost, duplicated, delayed or reordered and the protocol copes with it.
package transport

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"go-multipaxos/paxos/messages"
)

var log = logging.Logger("transport")

// ErrStopped is returned by Receive once Stop has been called.
var ErrStopped = errors.New("transport stopped")

// Transport is the datagram layer consumed by the nodes.
type Transport interface {
	// Address is the address other nodes use to reach this one.
	Address() string

	// Send stamps the message source and hands it over for delivery to msg.Destination.
	// It never waits for the receiver; a nil error does not mean the message will arrive.
	Send(msg *messages.Message) error

	// Receive blocks for at most one poll interval.
	// It returns (nil, nil) when the interval elapsed without a message so the caller can run its housekeeping.
	Receive() (*messages.Message, error)

	// Stop makes a pending or future Receive return ErrStopped promptly.
	Stop() error
}
