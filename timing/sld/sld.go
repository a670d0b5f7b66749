// Package sld implements the staged slide execution unit. A slide moves the
// whole source group up or down by a number of elements, so each destination
// sub-register draws its bytes from at most two source sub-registers. The
// unit keeps those two buffered and fetches one new sub-register per step as
// the iteration walks the group.
package sld

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/timing/hazard"
	"github.com/vproclab/vvsim/timing/unit"
)

// Unit is the slide execution unit.
type Unit struct {
	vregBytes int

	busy bool
	op   *insts.Descriptor
	ctr  unit.Counter
	last bool

	// Slide amount decomposed against the register width.
	amt        int
	shiftBytes int

	fetch unit.FetchQueue
	mask  []byte
	subs  map[int][]byte

	stage *unit.Stage[unit.VRegWrite]
	wq    *unit.WriteQueue
}

// New creates a slide unit for the given register width in bytes.
func New(vregBytes, writeLatency int, stageBuffered bool) *Unit {
	return &Unit{
		vregBytes: vregBytes,
		stage:     unit.NewStage[unit.VRegWrite](stageBuffered),
		wq:        unit.NewWriteQueue(writeLatency),
	}
}

// Busy reports whether an operation is still iterating.
func (u *Unit) Busy() bool { return u.busy }

// NeedsRead reports whether the unit wants the shared read port this cycle.
func (u *Unit) NeedsRead() bool { return u.busy && u.fetch.Pending() }

// Admit accepts one decoded operation.
func (u *Unit) Admit(op *insts.Descriptor) {
	u.busy = true
	u.op = op
	u.ctr = unit.NewCounter(1)
	u.last = false
	u.fetch.Reset()
	u.mask = nil
	u.subs = make(map[int][]byte)

	u.amt = 1
	if !op.Mode.Sld.Slide1 {
		u.amt = int(op.Rs1.Value)
		// Amounts beyond the group shift everything out; cap so the byte
		// arithmetic below stays in range.
		maxElems := op.EMUL.Count() * u.vregBytes / op.SEW.Bytes()
		if u.amt > maxElems {
			u.amt = maxElems
		}
	}
	u.shiftBytes = u.amt * op.SEW.Bytes()

	if op.Masked && !op.VLZero {
		u.fetch.Add(0, unit.OpMask)
	}
	u.scheduleStep(0)
}

// srcSubs returns the source sub-registers destination sub k draws from, in
// ascending order.
func (u *Unit) srcSubs(k int) []int {
	srcCount := u.op.VS2RegCount()
	subShift := u.shiftBytes / u.vregBytes
	partial := u.shiftBytes%u.vregBytes != 0

	var cand []int
	if u.op.Mode.Sld.Dir == insts.SlideUp {
		if partial {
			cand = append(cand, k-subShift-1)
		}
		cand = append(cand, k-subShift)
	} else {
		cand = append(cand, k+subShift)
		if partial {
			cand = append(cand, k+subShift+1)
		}
	}

	var out []int
	for _, s := range cand {
		if s >= 0 && s < srcCount {
			out = append(out, s)
		}
	}
	return out
}

// scheduleStep queues fetches for the source subs of step k that are not
// already buffered, and drops buffered subs the remaining steps cannot use.
func (u *Unit) scheduleStep(k int) {
	if u.op.VLZero {
		return
	}
	need := u.srcSubs(k)
	for held := range u.subs {
		keep := false
		for _, s := range need {
			if s == held {
				keep = true
			}
		}
		if !keep {
			delete(u.subs, held)
		}
	}
	for _, s := range need {
		if _, ok := u.subs[s]; !ok {
			u.fetch.Add(u.op.Rs2.Index+uint8(s), unit.OpVS2)
		}
	}
}

// latch routes fetched data to the mask buffer or a source sub slot.
func (u *Unit) latch(fe unit.Fetch, data []byte) {
	if fe.Op == unit.OpMask {
		u.mask = data
		return
	}
	u.subs[int(fe.Index-u.op.Rs2.Index)] = data
}

// Tick advances the unit one cycle.
func (u *Unit) Tick(port unit.ReadPort) unit.Result {
	var res unit.Result
	var produced unit.VRegWrite
	haveOutput := false

	if u.busy {
		switch {
		case u.fetch.Pending():
			if port != nil {
				fe := u.fetch.Pop()
				u.latch(fe, port.Read(fe.Index))
				res.ClearRead |= hazard.Bit(fe.Index)
			}
		default:
			produced, haveOutput = u.step()
		}
	}

	staged, ok := u.stage.Shift(produced, haveOutput)
	var enq unit.VRegWrite
	if ok {
		enq = staged
	}
	res.Write, res.ClearWrite = u.wq.Shift(enq)
	return res
}

// srcByte reads one byte from the buffered source group image; bytes past
// either end of the group read as zero.
func (u *Unit) srcByte(global int) byte {
	if global < 0 || global >= u.op.VS2RegCount()*u.vregBytes {
		return 0
	}
	sub := global / u.vregBytes
	buf, ok := u.subs[sub]
	if !ok {
		return 0
	}
	return buf[global%u.vregBytes]
}

// step assembles one destination sub-register and advances the iteration.
func (u *Unit) step() (unit.VRegWrite, bool) {
	op := u.op
	k := u.ctr.GroupIndex()
	total := op.DestRegCount()
	u.last = k == total-1

	if op.VLZero {
		u.busy = false
		return unit.VRegWrite{
			GroupLast:  true,
			GroupBase:  op.Rd.Index,
			GroupCount: total,
		}, true
	}

	sewB := op.SEW.Bytes()
	up := op.Mode.Sld.Dir == insts.SlideUp
	out := make([]byte, u.vregBytes)

	for b := 0; b < u.vregBytes; b++ {
		gb := k*u.vregBytes + b
		if up {
			out[b] = u.srcByte(gb - u.shiftBytes)
		} else {
			src := gb + u.shiftBytes
			// Source elements at or past vl read as zero on the way down,
			// not whatever the register still holds.
			if src/sewB >= int(op.VL) {
				out[b] = 0
			} else {
				out[b] = u.srcByte(src)
			}
		}
	}

	wmask := unit.WriteMaskFor(k, u.vregBytes, op.SEW, op.VL, op.Masked, u.mask)

	if up {
		// A slide up never touches the elements below the slide amount;
		// vslide1up fills element 0 with the scalar instead.
		low := u.amt
		if op.Mode.Sld.Slide1 {
			low = 0
		}
		for b := 0; b < u.vregBytes; b++ {
			if (k*u.vregBytes+b)/sewB < low {
				wmask &^= 1 << uint(b)
			}
		}
	}

	if op.Mode.Sld.Slide1 {
		boundary := 0
		if !up {
			boundary = int(op.VL) - 1
		}
		first := boundary * sewB
		if first/u.vregBytes == k {
			off := first % u.vregBytes
			for i := 0; i < sewB; i++ {
				out[off+i] = byte(op.Rs1.Value >> (8 * uint(i)))
			}
		}
	}

	w := unit.VRegWrite{
		Enable:     true,
		Index:      op.Rd.Index + uint8(k),
		Mask:       wmask,
		Data:       out,
		GroupLast:  u.last,
		GroupBase:  op.Rd.Index,
		GroupCount: total,
	}

	u.ctr.Advance()
	if u.last {
		u.busy = false
	} else {
		u.scheduleStep(u.ctr.GroupIndex())
	}
	return w, true
}

// Reset returns the unit to idle and drops queued writes.
func (u *Unit) Reset() {
	u.busy = false
	u.op = nil
	u.fetch.Reset()
	u.stage.Reset()
	u.wq.Reset()
}
