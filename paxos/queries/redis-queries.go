package queries

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
)

// RedisStore implements the Store interface on top of a redis server.
// Several nodes can share the same server, each one works inside its own key prefix:
//
//	<prefix>:learnt        set of the turn ids with a value
//	<prefix>:learnt:<tid>  the value for turn id <tid>
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to @addr and checks that the server PONGs back.
func NewRedisStore(addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})
	if _, err := client.Ping().Result(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis server at %s did not PONG back to our PING", addr)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) setKey() string {
	return r.prefix + ":learnt"
}

func (r *RedisStore) valueKey(turnID int) string {
	return fmt.Sprintf("%s:learnt:%d", r.prefix, turnID)
}

// turnIDs lists the members of the learnt set.
func (r *RedisStore) turnIDs() ([]int, error) {
	members, err := r.client.SMembers(r.setKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing learnt turn ids")
	}
	tids := make([]int, 0, len(members))
	for _, m := range members {
		tid, err := strconv.Atoi(m)
		if err != nil {
			log.Warnf("[QUERIES] -> Skipping malformed turn id %q: %v", m, err)
			continue
		}
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids, nil
}

// GetLearntValue implements the Store interface.
func (r *RedisStore) GetLearntValue(turnID int) ([]byte, bool, error) {
	v, err := r.client.Get(r.valueKey(turnID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading turn id %d", turnID)
	}
	return v, true, nil
}

// SetLearntValue implements the Store interface.
// The value and the set membership are written in a single transaction.
func (r *RedisStore) SetLearntValue(turnID int, v []byte) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(r.setKey(), turnID)
	pipe.Set(r.valueKey(turnID), v, 0)
	_, err := pipe.Exec()
	return errors.Wrapf(err, "storing turn id %d", turnID)
}

// GetAllLearntValues implements the Store interface.
func (r *RedisStore) GetAllLearntValues() ([]LearntWithTid, error) {
	tids, err := r.turnIDs()
	if err != nil {
		return nil, err
	}
	var all []LearntWithTid
	for _, tid := range tids {
		v, ok, err := r.GetLearntValue(tid)
		if err != nil {
			return nil, err
		}
		if ok {
			all = append(all, LearntWithTid{TurnID: tid, Learnt: v})
		}
	}
	return all, nil
}

// GetLastTurnID implements the Store interface.
func (r *RedisStore) GetLastTurnID() (int, error) {
	tids, err := r.turnIDs()
	if err != nil || len(tids) == 0 {
		return 0, err
	}
	return tids[len(tids)-1], nil
}

// ResetLearntValue implements the Store interface.
func (r *RedisStore) ResetLearntValue(turnID int) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(r.setKey(), strconv.Itoa(turnID))
	pipe.Del(r.valueKey(turnID))
	_, err := pipe.Exec()
	return errors.Wrapf(err, "resetting turn id %d", turnID)
}

// ResetAllLearntValues implements the Store interface.
func (r *RedisStore) ResetAllLearntValues() error {
	tids, err := r.turnIDs()
	if err != nil {
		return err
	}
	for _, tid := range tids {
		if err := r.ResetLearntValue(tid); err != nil {
			return err
		}
	}
	return nil
}

// Close implements the Store interface.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
