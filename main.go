package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"go-multipaxos/paxos"
	"go-multipaxos/paxos/config"
	"go-multipaxos/paxos/queries"
	"go-multipaxos/paxos/transport"
)

var log = logging.Logger("main")

// api serves the status routes of a node. Exactly one of leader and acceptor is set.
type api struct {
	conf     *config.Conf
	store    queries.Store
	leader   *paxos.Leader
	acceptor *paxos.Acceptor
}

// learntValue is the json representation of a stored value.
type learntValue struct {
	TurnID int    `json:"turn_id"`
	Learnt string `json:"learnt"`
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, paxos.ToJson(map[string]string{"message": message}))
}

/*
# ========================================================= #
#                        META HANDLERS                      #
# ========================================================= #
*/

// welcomeHandler is the handler of GET requests to the root route "/" or to any other non existing route.
func (a *api) welcomeHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)
	writeMessage(w, http.StatusOK, "GoLang implementation of the Multi-Paxos Algorithm.")
}

// infoHandler handles GET requests to route /info and describes the node.
func (a *api) infoHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	last, err := a.store.GetLastTurnID()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	info := map[string]interface{}{
		"message":      fmt.Sprintf("golang@%s@%d", a.conf.ROLE, a.conf.PID),
		"address":      a.conf.ADDRESS,
		"last_turn_id": last,
	}
	if a.leader != nil {
		info["primary"] = a.leader.IsPrimary()
		info["highest"] = a.leader.Highest()
		info["num_accepted"] = a.leader.NumAccepted()
	}
	if a.acceptor != nil {
		info["failed"] = a.acceptor.Failed()
	}
	_, _ = fmt.Fprint(w, paxos.ToJson(info))
}

// getLearntValueHandler handles GET requests on /node/get_learnt_value.
// The 'learnt' field is empty if nothing was stored for the requested turn id.
func (a *api) getLearntValueHandler(w http.ResponseWriter, r *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	turnID, err := strconv.Atoi(r.URL.Query().Get("turn_id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "turn_id must be an integer")
		return
	}
	v, _, err := a.store.GetLearntValue(turnID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, _ = fmt.Fprint(w, paxos.ToJson(learntValue{TurnID: turnID, Learnt: string(v)}))
}

// getAllLearntValuesHandler handles GET requests on /node/get_all_learnt_values.
func (a *api) getAllLearntValuesHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	all, err := a.store.GetAllLearntValues()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	values := make([]learntValue, 0, len(all))
	for _, l := range all {
		values = append(values, learntValue{TurnID: l.TurnID, Learnt: string(l.Learnt)})
	}
	_, _ = fmt.Fprint(w, paxos.ToJson(values))
}

// resetLearntValueHandler handles GET requests on /node/reset_learnt_value.
// Only the observation store is affected, the protocol state is not.
func (a *api) resetLearntValueHandler(w http.ResponseWriter, r *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	turnID, err := strconv.Atoi(r.URL.Query().Get("turn_id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "turn_id must be an integer")
		return
	}
	if err := a.store.ResetLearntValue(turnID); err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "reset")
}

// resetAllLearntValuesHandler handles GET requests on /node/reset_all_learnt_values.
func (a *api) resetAllLearntValuesHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	if err := a.store.ResetAllLearntValues(); err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "reset")
}

/*
# ========================================================= #
#                      LEADER HANDLERS                      #
# ========================================================= #
*/

// proposeHandler handles GET requests on /leader/propose.
// The value is only proposed if this leader is primary.
func (a *api) proposeHandler(w http.ResponseWriter, r *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	v := r.URL.Query().Get("v")
	if v == "" {
		writeMessage(w, http.StatusBadRequest, "v is required")
		return
	}
	if !a.leader.Submit([]byte(v)) {
		writeMessage(w, http.StatusServiceUnavailable, "not primary")
		return
	}
	writeMessage(w, http.StatusOK, "proposed")
}

// historyHandler handles GET requests on /leader/history and lists the decided values in instance order.
// Undecided instances are null.
func (a *api) historyHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)

	history := a.leader.History()
	values := make([]*string, len(history))
	for i, v := range history {
		if v != nil {
			s := string(v)
			values[i] = &s
		}
	}
	_, _ = fmt.Fprint(w, paxos.ToJson(values))
}

/*
# ========================================================= #
#                     ACCEPTOR HANDLERS                     #
# ========================================================= #
*/

// failHandler handles GET requests on /acceptor/fail. The acceptor drops every message until recovered.
func (a *api) failHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)
	a.acceptor.Fail()
	writeMessage(w, http.StatusOK, "failed")
}

// recoverHandler handles GET requests on /acceptor/recover.
func (a *api) recoverHandler(w http.ResponseWriter, _ *http.Request) {
	paxos.EnableCors(w)
	paxos.AddContentTypeJson(w)
	a.acceptor.Recover()
	writeMessage(w, http.StatusOK, "recovered")
}

// routes registers the handlers available for the role of the node.
func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// META ROUTES
	mux.HandleFunc("/", a.welcomeHandler)
	mux.HandleFunc("/info", a.infoHandler)

	// learnt value handling
	mux.HandleFunc("/node/get_learnt_value", a.getLearntValueHandler)
	mux.HandleFunc("/node/get_all_learnt_values", a.getAllLearntValuesHandler)
	mux.HandleFunc("/node/reset_learnt_value", a.resetLearntValueHandler)
	mux.HandleFunc("/node/reset_all_learnt_values", a.resetAllLearntValuesHandler)

	if a.leader != nil {
		mux.HandleFunc("/leader/propose", a.proposeHandler)
		mux.HandleFunc("/leader/history", a.historyHandler)
	}
	if a.acceptor != nil {
		mux.HandleFunc("/acceptor/fail", a.failHandler)
		mux.HandleFunc("/acceptor/recover", a.recoverHandler)
	}
	return mux
}

// node is a started leader or acceptor.
type node interface {
	Start()
	Stop()
}

// setup builds the node described by @conf on top of @t and @store.
func setup(conf *config.Conf, t transport.Transport, store queries.Store) (node, *api) {
	a := &api{conf: conf, store: store}
	if conf.ROLE == config.RoleAcceptor {
		a.acceptor = paxos.NewAcceptor(conf, t, store)
		return a.acceptor, a
	}
	a.leader = paxos.NewLeader(conf, t, store)
	return a.leader, a
}

func run(configPath string) error {
	conf := &config.Conf{}
	if err := conf.LoadConfigFile(configPath); err != nil {
		return err
	}
	conf.FillEmptyFields()
	if err := conf.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	lvl, err := logging.LevelFromString(conf.LOG_LEVEL)
	if err != nil {
		return errors.Wrapf(err, "log level %q", conf.LOG_LEVEL)
	}
	logging.SetAllLoggers(lvl)

	store, err := queries.Open(conf)
	if err != nil {
		return err
	}
	defer store.Close()

	t, err := transport.NewUDPTransport(conf.ADDRESS, conf.POLL_TIMEOUT)
	if err != nil {
		return err
	}

	n, a := setup(conf, t, store)
	n.Start()
	defer n.Stop()
	log.Infof("[MAIN] -> %s node %d listening on %s.", conf.ROLE, conf.PID, conf.ADDRESS)

	if conf.HTTP_PORT != 0 {
		srv := &http.Server{Addr: ":" + strconv.Itoa(conf.HTTP_PORT), Handler: a.routes()}
		go func() {
			log.Infof("[MAIN] -> Serving the status API on port %d.", conf.HTTP_PORT)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("[MAIN] -> Status API stopped: %v", err)
			}
		}()
		defer srv.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	log.Infof("[MAIN] -> Received %s, shutting down.", <-sig)
	return nil
}

func main() {
	rand.Seed(time.Now().UTC().UnixNano())
	configPath := "./config.yaml"

	// config path can be specified as an argument from command line
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if err := run(configPath); err != nil {
		log.Fatalf("[MAIN] -> %v", err)
	}
}
