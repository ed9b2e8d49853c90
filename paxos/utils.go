package paxos

import (
	"encoding/json"
	"net/http"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"go-multipaxos/paxos/messages"
	"go-multipaxos/paxos/transport"
)

var log = logging.Logger("paxos")

// noop is the placeholder proposed when filling gaps.
var noop = []byte("0")

// sendTo stamps and sends a copy of @msg to @dest. Delivery is not guaranteed, failures are only logged.
func sendTo(t transport.Transport, senderID int, msg *messages.Message, dest string) {
	m := msg.Clone()
	m.Destination = dest
	m.SenderID = senderID
	log.Debugf("[UTILS] -> %s sends %s", t.Address(), m)
	if err := t.Send(m); err != nil {
		log.Debugf("[UTILS] -> Could not send %s to %s: %v", m.Command, dest, err)
	}
}

// runLoop runs @loop in its own goroutine. A loop that fails is logged with context; the other loops keep running.
func runLoop(wg *sync.WaitGroup, tag, name string, loop func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(); err != nil {
			log.Errorf("%s -> %s terminated: %v", tag, name, err)
			return
		}
		log.Infof("%s -> %s finished.", tag, name)
	}()
}

// ToJson is used to marshal interfaces into a valid json string.
func ToJson(i interface{}) string {
	res, _ := json.MarshalIndent(i, "", "	")
	return string(res)
}

// AddContentTypeJson adds the content type header to responses.
func AddContentTypeJson(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

// EnableCors allows requests from anywhere.
func EnableCors(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}
