// Package config exposes the variables, loaded through a .yaml file, that describe a node and its cluster.
package config

import (
	"io/ioutil"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	RoleLeader   = "leader"
	RoleAcceptor = "acceptor"
)

// Conf is a type describing the meta variables used by the different parts of the algorithm.
// The cluster is fixed for the lifetime of the process, there is no reconfiguration.
type Conf struct {
	PID     int    `yaml:"pid"`     // PID is the identifier of the node, PID is supposed to be unique. Leaders with a higher PID win elections.
	ROLE    string `yaml:"role"`    // ROLE is either "leader" or "acceptor".
	ADDRESS string `yaml:"address"` // ADDRESS is the UDP address (host:port) this node binds to.

	HTTP_PORT int `yaml:"http_port"` // HTTP_PORT defines the TCP port of the status API. 0 disables it.

	LEADERS   []string `yaml:"leaders"`   // LEADERS lists the addresses of every leader of the cluster. A leader finds its peers by removing its own ADDRESS.
	ACCEPTORS []string `yaml:"acceptors"` // ACCEPTORS lists the addresses of every acceptor of the cluster.
	QUORUM    int      `yaml:"quorum"`    // QUORUM defines the number of acceptor replies needed to make progress. It's computed at execution time, but can be provided explicitly.

	PRIMARY bool `yaml:"primary"` // PRIMARY makes a leader start as primary instead of waiting for a heartbeat timeout.

	POLL_TIMEOUT       time.Duration `yaml:"poll_timeout"`       // POLL_TIMEOUT bounds a single receive on the transport.
	HEARTBEAT_INTERVAL time.Duration `yaml:"heartbeat_interval"` // HEARTBEAT_INTERVAL is the delay between two heartbeats of a primary.
	HEARTBEAT_TIMEOUT  time.Duration `yaml:"heartbeat_timeout"`  // HEARTBEAT_TIMEOUT is how long a leader waits for a heartbeat before asserting itself primary.
	GAP_FILL_INTERVAL  time.Duration `yaml:"gap_fill_interval"`  // GAP_FILL_INTERVAL is the minimum delay between two gap-filling rounds.

	DB_TYPE    string `yaml:"db_type"`    // DB_TYPE selects the observation store: "memory", "redis" or "sqlite".
	DB_PATH    string `yaml:"db_path"`    // DB_PATH locates the sqlite database file.
	REDIS_ADDR string `yaml:"redis_addr"` // REDIS_ADDR is the address of the redis server.

	LOG_LEVEL string `yaml:"log_level"`
}

// LoadConfigFile loads the config '.yaml' file onto the callee Conf object.
func (c *Conf) LoadConfigFile(fn string) error {
	yamlFile, err := ioutil.ReadFile(fn)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", fn)
	}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return errors.Wrapf(err, "unmarshalling config file %s", fn)
	}
	return nil
}

// FillEmptyFields fills in those fields that were left empty in the .yaml file or those which need a run-time computation.
func (c *Conf) FillEmptyFields() {

	if c.PID == 0 {
		c.PID = rand.Intn(10000) + 1
	}

	if c.ROLE == "" {
		c.ROLE = RoleLeader
	}

	if c.QUORUM == 0 {
		c.QUORUM = len(c.ACCEPTORS)/2 + 1
	}

	if c.POLL_TIMEOUT == 0 {
		c.POLL_TIMEOUT = time.Second
	}

	if c.HEARTBEAT_INTERVAL == 0 {
		c.HEARTBEAT_INTERVAL = time.Second
	}

	if c.HEARTBEAT_TIMEOUT == 0 {
		c.HEARTBEAT_TIMEOUT = 2 * time.Second
	}

	// only run every 15s otherwise good protocols risk being cut off in their prime
	if c.GAP_FILL_INTERVAL == 0 {
		c.GAP_FILL_INTERVAL = 15 * time.Second
	}

	if c.DB_TYPE == "" {
		c.DB_TYPE = "memory"
	}

	if c.LOG_LEVEL == "" {
		c.LOG_LEVEL = "info"
	}
}

// Validate reports the first inconsistency found in the configuration.
func (c *Conf) Validate() error {
	switch c.ROLE {
	case RoleLeader, RoleAcceptor:
	default:
		return errors.Errorf("unknown role %q", c.ROLE)
	}
	if c.ADDRESS == "" {
		return errors.New("address is required")
	}
	if len(c.ACCEPTORS) == 0 {
		return errors.New("at least one acceptor is required")
	}
	if len(c.LEADERS) == 0 {
		return errors.New("at least one leader is required")
	}
	if c.QUORUM > len(c.ACCEPTORS) {
		return errors.Errorf("quorum %d exceeds the number of acceptors (%d)", c.QUORUM, len(c.ACCEPTORS))
	}
	if c.QUORUM <= len(c.ACCEPTORS)/2 {
		return errors.Errorf("quorum %d is not a majority of %d acceptors", c.QUORUM, len(c.ACCEPTORS))
	}
	switch c.DB_TYPE {
	case "memory", "redis", "sqlite":
	default:
		return errors.Errorf("unknown db_type %q", c.DB_TYPE)
	}
	return nil
}

// PeerLeaders returns every leader address except this node's own.
func (c *Conf) PeerLeaders() []string {
	var peers []string
	for _, l := range c.LEADERS {
		if l != c.ADDRESS {
			peers = append(peers, l)
		}
	}
	return peers
}
