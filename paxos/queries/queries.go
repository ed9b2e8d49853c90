// Package queries implements the observation store of a node: a write-through mirror of the values a node
// accepted (acceptors) or learnt (leaders), keyed by instance (turn) id.
// The store is only ever written by the protocol and read by observers; it is never used to restore protocol
// state, nodes reset their namespace when they boot.
package queries

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"go-multipaxos/paxos/config"
)

var log = logging.Logger("queries")

// LearntWithTid is the representation of an entry of the 'learnt' table.
// it's composed of a turn id field and a learnt field.
type LearntWithTid struct {
	TurnID int    `json:"turn_id"` // TurnID is the instance the value belongs to.
	Learnt []byte `json:"learnt"`  // Learnt is the value accepted or learnt for this turn id.
}

// Store is implemented by every backend.
type Store interface {
	// GetLearntValue returns the value stored for @turnID; ok is false if there is none.
	GetLearntValue(turnID int) (v []byte, ok bool, err error)

	// SetLearntValue inserts/updates the entry for @turnID.
	SetLearntValue(turnID int, v []byte) error

	// GetAllLearntValues returns every entry sorted by turn id.
	GetAllLearntValues() ([]LearntWithTid, error)

	// GetLastTurnID returns the highest turn id stored, 0 if the store is empty.
	GetLastTurnID() (int, error)

	// ResetLearntValue deletes the entry for @turnID.
	ResetLearntValue(turnID int) error

	// ResetAllLearntValues empties the store.
	ResetAllLearntValues() error

	Close() error
}

// Open prepares the backend selected by DB_TYPE and empties it.
func Open(conf *config.Conf) (Store, error) {
	var (
		s   Store
		err error
	)
	switch conf.DB_TYPE {
	case "memory", "":
		s = NewMemoryStore()
	case "redis":
		s, err = NewRedisStore(conf.REDIS_ADDR, fmt.Sprintf("node:%d", conf.PID))
	case "sqlite":
		s, err = NewSQLiteStore(conf.DB_PATH)
	default:
		return nil, errors.Errorf("unknown db_type %q", conf.DB_TYPE)
	}
	if err != nil {
		return nil, err
	}

	if err := s.ResetAllLearntValues(); err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "resetting observation store")
	}
	log.Infof("[QUERIES] -> Using %s observation store.", conf.DB_TYPE)
	return s, nil
}
