// Package vmul implements the staged multiply execution unit. It follows
// the same iteration protocol as the ALU unit; multiply-accumulate forms
// additionally fetch the destination group as a third operand.
package vmul

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/timing/hazard"
	"github.com/vproclab/vvsim/timing/unit"
)

// Unit is the multiply execution unit.
type Unit struct {
	vregBytes int

	busy bool
	op   *insts.Descriptor
	ctr  unit.Counter
	last bool

	fetch unit.FetchQueue
	mask  []byte
	vs1   []byte
	vs2   []byte
	vd    []byte

	vxsat bool

	stage *unit.Stage[unit.VRegWrite]
	wq    *unit.WriteQueue
}

// New creates a multiply unit for the given register width in bytes.
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

// SatFlag returns and clears the accumulated saturation flag.
func (u *Unit) SatFlag() bool {
	s := u.vxsat
	u.vxsat = false
	return s
}

// Admit accepts one decoded operation.
func (u *Unit) Admit(op *insts.Descriptor) {
	u.busy = true
	u.op = op
	u.ctr = unit.NewCounter(1)
	u.last = false
	u.fetch.Reset()
	u.mask = nil
	u.vs1 = nil
	u.vs2 = nil
	u.vd = nil

	if op.Masked && !op.VLZero {
		u.fetch.Add(0, unit.OpMask)
	}
	u.scheduleStep(0)
}

func (u *Unit) wide() bool { return u.op.WidthClass == insts.WidthWide }

// scheduleStep queues the reads destination sub k needs.
func (u *Unit) scheduleStep(k int) {
	op := u.op
	if op.VLZero {
		return
	}
	srcSub := k
	newSrc := true
	if u.wide() {
		srcSub = k / 2
		newSrc = k%2 == 0
	}
	if op.Rs2.IsVector && newSrc {
		u.fetch.Add(op.Rs2.Index+uint8(srcSub), unit.OpVS2)
	}
	if op.Rs1.IsVector && newSrc {
		u.fetch.Add(op.Rs1.Index+uint8(srcSub), unit.OpVS1)
	}
	if op.Mode.Mul.Acc {
		u.fetch.Add(op.Rd.Index+uint8(k), unit.OpVD)
	}
}

// latch routes fetched data to the operand buffer its fetch was scheduled
// for, so accumulate forms that name the same register as source and
// destination still fill both buffers.
func (u *Unit) latch(operand unit.Operand, data []byte) {
	switch operand {
	case unit.OpMask:
		u.mask = data
	case unit.OpVD:
		u.vd = data
	case unit.OpVS2:
		u.vs2 = data
	default:
		u.vs1 = data
	}
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
				u.latch(fe.Op, port.Read(fe.Index))
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

// step computes one destination sub-register and advances the iteration.
func (u *Unit) step() (unit.VRegWrite, bool) {
	op := u.op
	k := u.ctr.GroupIndex()
	total := op.DestEMUL().Count()
	u.last = k == total-1

	if op.VLZero {
		u.busy = false
		return unit.VRegWrite{
			GroupLast:  true,
			GroupBase:  op.Rd.Index,
			GroupCount: op.DestRegCount(),
		}, true
	}

	sewB := op.SEW.Bytes()
	destB := sewB
	if u.wide() {
		destB = 2 * sewB
	}
	elems := u.vregBytes / destB
	out := make([]byte, u.vregBytes)

	for e := 0; e < elems; e++ {
		a := u.srcLane(u.vs2, op.Rs2, k, e)
		b := u.srcLane(u.vs1, op.Rs1, k, e)
		var acc uint64
		if op.Mode.Mul.Acc {
			acc = loadLane(u.vd, e*destB, destB)
		}
		r := u.lane(a, b, acc)
		storeLane(out, e*destB, destB, r)
	}

	destSEW := op.SEW
	if u.wide() {
		destSEW = op.SEW + 1
	}
	w := unit.VRegWrite{
		Enable:     true,
		Index:      op.Rd.Index + uint8(k),
		Mask:       unit.WriteMaskFor(k, u.vregBytes, destSEW, op.VL, op.Masked, u.mask),
		Data:       out,
		GroupLast:  u.last,
		GroupBase:  op.Rd.Index,
		GroupCount: op.DestRegCount(),
	}

	u.ctr.Advance()
	if u.last {
		u.busy = false
	} else {
		u.scheduleStep(u.ctr.GroupIndex())
	}
	return w, true
}

// srcLane extracts one source element for destination sub k, element e.
func (u *Unit) srcLane(buf []byte, operand insts.Operand, k, e int) uint64 {
	op := u.op
	sewB := op.SEW.Bytes()
	if !operand.IsVector {
		return uint64(operand.Value)
	}
	if u.wide() {
		srcElems := u.vregBytes / (2 * sewB)
		return loadLane(buf, ((k%2)*srcElems+e)*sewB, sewB)
	}
	return loadLane(buf, e*sewB, sewB)
}

// lane evaluates the multiply transform for one element pair.
func (u *Unit) lane(a, b, acc uint64) uint64 {
	op := u.op
	bits := op.SEW.Bits()
	laneMask := lowMask(bits)
	sa, sb := signExtend(a, bits), signExtend(b, bits)

	switch op.Mode.Mul.Op {
	case insts.MulMul:
		return uint64(sa*sb) & laneMask
	case insts.MulMulH:
		return uint64((sa*sb)>>uint(bits)) & laneMask
	case insts.MulMulHU:
		return ((a & laneMask) * (b & laneMask) >> uint(bits)) & laneMask
	case insts.MulMulHSU:
		return uint64((sa*int64(b&laneMask))>>uint(bits)) & laneMask
	case insts.MulSMul:
		p := sa * sb
		r := p >> uint(bits-1)
		if p&(1<<uint(bits-2)) != 0 { // round-to-nearest-up
			r++
		}
		max := int64(laneMask >> 1)
		if r > max {
			u.vxsat = true
			r = max
		}
		if r < -max-1 {
			u.vxsat = true
			r = -max - 1
		}
		return uint64(r) & laneMask
	case insts.MulMAcc:
		return uint64(sa*sb+int64(acc)) & laneMask
	case insts.MulNMSac:
		return uint64(int64(acc)-sa*sb) & laneMask
	case insts.MulMAdd:
		return uint64(sb*int64(acc)+sa) & laneMask
	case insts.MulNMSub:
		return uint64(int64(sa)-sb*int64(acc)) & laneMask
	case insts.MulWMul:
		return uint64(sa * sb)
	case insts.MulWMulU:
		return (a & laneMask) * (b & laneMask)
	case insts.MulWMulSU:
		return uint64(sa * int64(b&laneMask))
	case insts.MulWMAcc:
		return uint64(sa*sb + int64(acc))
	case insts.MulWMAccU:
		return (a&laneMask)*(b&laneMask) + acc
	case insts.MulWMAccSU:
		return uint64(sb*int64(a&laneMask) + int64(acc))
	case insts.MulWMAccUS:
		return uint64(int64(b&laneMask)*sa + int64(acc))
	default:
		return 0
	}
}

// Reset returns the unit to idle and drops queued writes.
func (u *Unit) Reset() {
	u.busy = false
	u.op = nil
	u.fetch.Reset()
	u.stage.Reset()
	u.wq.Reset()
	u.vxsat = false
}

func loadLane(buf []byte, off, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		if off+i < len(buf) {
			v |= uint64(buf[off+i]) << (8 * uint(i))
		}
	}
	return v
}

func storeLane(buf []byte, off, n int, v uint64) {
	for i := 0; i < n; i++ {
		if off+i < len(buf) {
			buf[off+i] = byte(v >> (8 * uint(i)))
		}
	}
}

func signExtend(v uint64, bits int) int64 {
	sh := 64 - uint(bits)
	return int64(v<<sh) >> sh
}

func lowMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (1 << uint(n)) - 1
}
