// seeker.go holds the housekeeping a primary leader runs when the network is quiet.
// Gap filling "seeks" the instances below the highest known one that never got decided, be it because their
// proposer crashed mid-round or because the decision never reached this leader, and proposes a placeholder for them.
// Whatever value was already accepted by a quorum is adopted by the filler round, so filling never overwrites.
// Garbage collection drops the state machines that are fully resolved.

package paxos

// idle runs gap filling and garbage collection at most once per gap-fill interval, and only while primary.
func (l *Leader) idle() {
	if !l.IsPrimary() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGapFill) < l.gapFillInterval {
		return
	}
	l.lastGapFill = now

	log.Debugf("[SEEKER] -> %s seeking procedure is starting now.", l.tag)
	l.findAndFillGaps()
	l.collectGarbage()
}

// findAndFillGaps proposes the placeholder value for every undecided instance up to the highest known one.
// It returns the filled instances. Must be called with l.mu held.
func (l *Leader) findAndFillGaps() []int {
	var filled []int
	for i := 1; i <= l.highest; i++ {
		if record, ok := l.instances[i]; ok && record.decided {
			continue
		}
		filled = append(filled, i)
	}
	if len(filled) == 0 {
		return nil
	}

	log.Infof("[SEEKER] -> %s filling gaps %v.", l.tag, filled)
	for _, i := range filled {
		l.newProposal(noop, i)
	}
	return filled
}

// collectGarbage removes the accepted state machines of every instance and returns how many were dropped.
// Must be called with l.mu held.
func (l *Leader) collectGarbage() int {
	removed := 0
	for _, record := range l.instances {
		removed += record.cleanProtocols()
	}
	if removed > 0 {
		log.Debugf("[GC] -> %s removed %d protocols.", l.tag, removed)
	}
	return removed
}
