package paxos

import (
	"bytes"
)

// learn records @value as decided for @instanceID and mirrors it to the store.
// A decided value never changes: a different value for a decided instance is refused.
// Must be called with l.mu held.
func (l *Leader) learn(instanceID int, value []byte) {
	record, ok := l.instances[instanceID]
	if !ok {
		record = newInstanceRecord()
		l.instances[instanceID] = record
	}

	if record.decided {
		if !bytes.Equal(record.value, value) {
			log.Errorf("[LEARNER] -> Instance %d already decided %q, refusing %q.", instanceID, record.value, value)
		}
		return
	}

	record.decided = true
	record.value = value
	l.numAccepted++
	if instanceID > l.highest {
		l.highest = instanceID
	}

	log.Infof("[LEARNER] -> %s learnt %q for instance %d.", l.tag, value, instanceID)
	if err := l.store.SetLearntValue(instanceID, value); err != nil {
		log.Warnf("[LEARNER] -> Could not store instance %d: %v", instanceID, err)
	}
}

// InstanceValue returns the value decided for @instanceID, if any.
func (l *Leader) InstanceValue(instanceID int) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.instances[instanceID]
	if !ok || !record.decided {
		return nil, false
	}
	return record.value, true
}

// History returns the values of instances 1 to Highest(); undecided instances are nil.
func (l *Leader) History() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	history := make([][]byte, 0, l.highest)
	for i := 1; i <= l.highest; i++ {
		var v []byte
		if record, ok := l.instances[i]; ok && record.decided {
			v = record.value
		}
		history = append(history, v)
	}
	return history
}

// NumAccepted returns the number of instances decided so far.
func (l *Leader) NumAccepted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.numAccepted
}

// Highest returns the highest instance known to this leader, allocated or learnt.
func (l *Leader) Highest() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.highest
}
