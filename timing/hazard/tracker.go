// Package hazard tracks cross-unit vector register dependencies.
//
// Two 32-bit presence sets, one bit per logical register, record which
// registers have a read or a write outstanding. The admission path is the
// only writer of set bits; execution units retire bits through per-cycle
// clear pulses as individual sub-register reads and writes complete.
package hazard

import (
	"math/bits"

	"github.com/vproclab/vvsim/insts"
)

// RegMask is a bitset over the 32 logical vector registers.
type RegMask uint32

// GroupMask returns the mask covering base .. base+count-1. Alignment rules
// guarantee the group never wraps past register 31.
func GroupMask(base uint8, count int) RegMask {
	if count <= 0 {
		return 0
	}
	return RegMask(((uint64(1) << uint(count)) - 1) << base)
}

// Bit returns the mask for a single register.
func Bit(index uint8) RegMask { return 1 << index }

// Has reports whether register index is in the set.
func (m RegMask) Has(index uint8) bool { return m&(1<<index) != 0 }

// Count returns the number of registers in the set.
func (m RegMask) Count() int { return bits.OnesCount32(uint32(m)) }

// Footprint computes the register groups an operation reads and writes,
// spanning each operand's full group under its effective multiplier. Masked
// operations include v0 in the read set; it stays pending until the unit
// consumes the mask on its first cycle. A zero-length operation reads
// nothing: its unit performs no fetches, only the delayed group-completion
// pulse for the write set.
func Footprint(d *insts.Descriptor) (read, write RegMask) {
	if d.RdIsWritten() {
		write = GroupMask(d.Rd.Index, d.DestRegCount())
	}
	if d.VLZero {
		return 0, write
	}
	if d.Rs1.IsVector {
		read |= GroupMask(d.Rs1.Index, d.VS1RegCount())
	}
	if d.Rs2.IsVector {
		read |= GroupMask(d.Rs2.Index, d.VS2RegCount())
	}
	if d.RdIsSource() {
		read |= GroupMask(d.Rd.Index, d.DestRegCount())
	}
	if d.Masked {
		read |= Bit(0)
	}
	return read, write
}

// Tracker is the hazard tracker: the single source of truth for cross-unit
// ordering. Bits are set only at admission and cleared only by unit-reported
// pulses.
type Tracker struct {
	readPending  RegMask
	writePending RegMask
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// ReadPending returns the registers with an outstanding read.
func (t *Tracker) ReadPending() RegMask { return t.readPending }

// WritePending returns the registers with an outstanding write.
func (t *Tracker) WritePending() RegMask { return t.writePending }

// CanIssue reports whether an operation may be admitted this cycle: its
// sources must not collide with pending writes, its destination must not
// collide with pending reads or writes, and the owning unit must be free.
func (t *Tracker) CanIssue(d *insts.Descriptor, unitBusy bool) bool {
	if unitBusy {
		return false
	}
	read, write := Footprint(d)
	if read&t.writePending != 0 {
		return false
	}
	if write&(t.readPending|t.writePending) != 0 {
		return false
	}
	return true
}

// Admit marks the operation's footprint pending. The caller must have
// checked CanIssue in the same cycle.
func (t *Tracker) Admit(d *insts.Descriptor) {
	read, write := Footprint(d)
	t.readPending |= read
	t.writePending |= write
}

// Clear retires the given bits. Each unit reports, once per cycle, the reads
// it consumed and the writes whose completion is now guaranteed.
func (t *Tracker) Clear(read, write RegMask) {
	t.readPending &^= read
	t.writePending &^= write
}

// Reset drops all pending state.
func (t *Tracker) Reset() {
	t.readPending = 0
	t.writePending = 0
}
