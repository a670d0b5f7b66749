// Package unit provides the building blocks shared by the staged vector
// execution units: the group iteration counter, the delayed register write
// queue, the optional per-stage pipeline buffer, and the operand fetch
// sequencer that serializes register file reads over the single read port.
package unit

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/timing/hazard"
)

// ReadPort is the register read interface handed to a unit on cycles the
// arbiter grants it the shared port.
type ReadPort interface {
	Read(index uint8) []byte
}

// Counter tracks progress through a register group at a unit-specific step
// granularity. It decomposes the raw step count into a group index and an
// intra-group offset by plain division, so no bit-layout assumptions leak
// into the units.
type Counter struct {
	count    int
	perGroup int
}

// NewCounter creates a counter with the given number of steps per
// sub-register.
func NewCounter(stepsPerSub int) Counter {
	if stepsPerSub < 1 {
		stepsPerSub = 1
	}
	return Counter{perGroup: stepsPerSub}
}

// GroupIndex returns the current sub-register index within the group.
func (c Counter) GroupIndex() int { return c.count / c.perGroup }

// Offset returns the current step within the sub-register.
func (c Counter) Offset() int { return c.count % c.perGroup }

// Raw returns the raw step count.
func (c Counter) Raw() int { return c.count }

// Advance moves to the next step.
func (c *Counter) Advance() { c.count++ }

// VRegWrite is one pending register-file write request.
type VRegWrite struct {
	Enable bool
	Index  uint8
	Mask   uint64
	Data   []byte

	// GroupLast marks the final sub-register write of an operation's
	// destination group. The write hazard for the whole group clears only
	// when this entry drains from the queue.
	GroupLast  bool
	GroupBase  uint8
	GroupCount int
}

// WriteQueue models the configurable register write latency as an explicit
// fixed-depth shift queue. An entry pushed in cycle t becomes visible to the
// register file gateway in cycle t+depth; the write hazard for a group
// clears when its last-flagged entry reaches the head, which defers release
// until every lane of the group has actually committed.
type WriteQueue struct {
	slots []VRegWrite
	head  int
}

// NewWriteQueue creates a queue with the given latency in cycles (minimum 1).
func NewWriteQueue(latency int) *WriteQueue {
	if latency < 1 {
		latency = 1
	}
	return &WriteQueue{slots: make([]VRegWrite, latency)}
}

// Shift advances the queue one cycle: the incoming request (possibly
// disabled) enters, the oldest entry leaves. The returned clear mask covers
// the departing entry's whole group when it is the group's last write.
func (q *WriteQueue) Shift(in VRegWrite) (out VRegWrite, clear hazard.RegMask) {
	out = q.slots[q.head]
	q.slots[q.head] = in
	q.head = (q.head + 1) % len(q.slots)
	// A zero-length operation enqueues a disabled entry that still carries
	// the group-last flag, so its hazard clears with the same timing.
	if out.GroupLast {
		clear = hazard.GroupMask(out.GroupBase, out.GroupCount)
	}
	return out, clear
}

// Draining reports whether any enabled write is still queued.
func (q *WriteQueue) Draining() bool {
	for _, s := range q.slots {
		if s.Enable {
			return true
		}
	}
	return false
}

// Reset drops all queued writes.
func (q *WriteQueue) Reset() {
	for i := range q.slots {
		q.slots[i] = VRegWrite{}
	}
	q.head = 0
}

// Stage is an optionally buffered pipeline stage. With buffering disabled it
// passes values through combinationally; enabled, it inserts exactly one
// cycle of delay. This replaces duplicated registered/combinational code
// paths with a configuration-time depth choice.
type Stage[T any] struct {
	buffered bool
	value    T
	valid    bool
}

// NewStage creates a stage with the requested buffering.
func NewStage[T any](buffered bool) *Stage[T] {
	return &Stage[T]{buffered: buffered}
}

// Shift presents the stage input for this cycle and returns the stage
// output.
func (s *Stage[T]) Shift(in T, inValid bool) (T, bool) {
	if !s.buffered {
		return in, inValid
	}
	out, outValid := s.value, s.valid
	s.value, s.valid = in, inValid
	return out, outValid
}

// Reset clears any buffered value.
func (s *Stage[T]) Reset() {
	var zero T
	s.value = zero
	s.valid = false
}

// Operand names the buffer a fetched register feeds. Routing fetched data by
// operand rather than by register index keeps overlapping register names
// unambiguous: vs1 and vs2 may name the same register, and accumulator forms
// read the destination group as a third source.
type Operand uint8

// Operand roles.
const (
	OpMask Operand = iota
	OpVS1
	OpVS2
	OpVD
)

// Fetch is one scheduled register read: the register index and the operand
// role its data fills.
type Fetch struct {
	Index uint8
	Op    Operand
}

// FetchQueue serializes the register reads one iteration step needs over the
// single shared read port: at most one pops per granted cycle, and the
// iteration counter holds until the queue is empty.
type FetchQueue struct {
	pending []Fetch
}

// Add schedules a register read for the given operand role.
func (f *FetchQueue) Add(index uint8, op Operand) {
	f.pending = append(f.pending, Fetch{Index: index, Op: op})
}

// Pending reports whether reads remain.
func (f *FetchQueue) Pending() bool { return len(f.pending) > 0 }

// Pop removes and returns the next scheduled read.
func (f *FetchQueue) Pop() Fetch {
	fe := f.pending[0]
	f.pending = f.pending[1:]
	return fe
}

// Reset drops scheduled reads.
func (f *FetchQueue) Reset() { f.pending = nil }

// Result is what a unit reports after one cycle.
type Result struct {
	// Write is the register write leaving the unit's delayed write queue
	// this cycle, routed to the register file gateway.
	Write VRegWrite

	// ClearRead and ClearWrite are this cycle's hazard clear pulses.
	ClearRead  hazard.RegMask
	ClearWrite hazard.RegMask

	// Scalar result channel for operations that produce one.
	ScalarResult uint32
	ScalarValid  bool
}

// MaskBit extracts element i's bit from a mask register image.
func MaskBit(mask []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(mask) {
		return false
	}
	return mask[byteIdx]>>(uint(i)%8)&1 == 1
}

// WriteMaskFor computes the byte-level write mask for one destination
// sub-register: a byte is enabled only when its element index is below the
// active vector length and, for masked operations, the corresponding mask
// bit is set. Tail elements are never written.
func WriteMaskFor(destSub int, vregBytes int, eew insts.SEW, vl uint32, masked bool, mask []byte) uint64 {
	var out uint64
	eb := eew.Bytes()
	if eb == 0 {
		return 0
	}
	for b := 0; b < vregBytes; b++ {
		elem := (destSub*vregBytes + b) / eb
		if uint32(elem) >= vl {
			continue
		}
		if masked && !MaskBit(mask, elem) {
			continue
		}
		out |= 1 << uint(b)
	}
	return out
}
