// Package proposal exposes the proposal ID type and its ordering.
package proposal

import "fmt"

// ID identifies one attempt at getting a value decided for an instance.
// Proposal IDs are supposed to be unique and orderable. To achieve so the ID is represented by a tuple composed by the
// sequence number (a counter local to the proposer) and the PID of the proposer. If two IDs have the same sequence
// number the PID is used to break ties, since PIDs are unique by definition.
type ID struct {
	Pid int `json:"pid"` // Pid is the (supposedly) unique identifier of the proposing node.
	Seq int `json:"seq"` // Seq is the proposer's counter, strictly increasing per proposer.
}

// Null is lower than every ID a proposer can issue. It is the "highest seen" of a brand new instance.
var Null = ID{Pid: -1, Seq: -1}

// IsGreaterThan overrides the ">" operator for IDs.
func (p ID) IsGreaterThan(other ID) bool {
	return p.Seq > other.Seq || (p.Seq == other.Seq && p.Pid > other.Pid)
}

// IsLowerThan overrides the "<" operator for IDs.
func (p ID) IsLowerThan(other ID) bool {
	return p.Seq < other.Seq || (p.Seq == other.Seq && p.Pid < other.Pid)
}

// IsEqualTo overrides the "==" operator for IDs.
func (p ID) IsEqualTo(other ID) bool {
	return p.Seq == other.Seq && p.Pid == other.Pid
}

// IsGEThan overrides the ">=" operator for IDs.
func (p ID) IsGEThan(other ID) bool {
	return p.IsGreaterThan(other) || p.IsEqualTo(other)
}

// IsLEThan overrides the "<=" operator for IDs.
func (p ID) IsLEThan(other ID) bool {
	return p.IsLowerThan(other) || p.IsEqualTo(other)
}

// Max returns the greater of the two IDs.
func Max(a, b ID) ID {
	if b.IsGreaterThan(a) {
		return b
	}
	return a
}

func (p ID) String() string {
	return fmt.Sprintf("(%d,%d)", p.Pid, p.Seq)
}
