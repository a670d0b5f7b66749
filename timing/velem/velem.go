// Package velem implements the staged element-processing execution unit:
// scalar moves, mask population and find-first, mask-set transforms, index
// and prefix-count generation, register gather, compress, and the single
// element reductions. Unlike the lane-parallel units it walks the vector one
// element per cycle, which is what gives gather and compress their
// data-dependent access patterns.
package velem

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/timing/hazard"
	"github.com/vproclab/vvsim/timing/unit"
)

// Unit is the element-processing execution unit.
type Unit struct {
	vregBytes int

	busy bool
	op   *insts.Descriptor
	ctr  unit.Counter
	last bool

	fetch   unit.FetchQueue
	mask    []byte
	vs1Subs map[int][]byte
	vs2Subs map[int][]byte

	// maskAcc holds the old destination of mask-set operations so inactive
	// and tail bits survive the byte-granular write port.
	maskAcc []byte

	// Per-operation accumulators.
	found    bool   // mask-set ops: first active set bit seen
	count    uint32 // viota/vcpop running count
	firstIdx int32  // vfirst result
	redAcc   uint64 // reduction accumulator
	packed   int    // vcompress: elements packed so far
	packBuf  []byte // vcompress: packed destination image
	outSub   []byte // current destination sub image being filled

	scalar      uint32
	scalarValid bool

	stage *unit.Stage[unit.VRegWrite]
	wq    *unit.WriteQueue
}

// New creates an element unit for the given register width in bytes.
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

func maskSetOp(op *insts.Descriptor) bool {
	switch op.Mode.Elem.Op {
	case insts.ElemMsbf, insts.ElemMsif, insts.ElemMsof:
		return true
	}
	return false
}

// Admit accepts one decoded operation and schedules every source fetch up
// front; the data-dependent ops need their full source image before the
// element walk starts.
func (u *Unit) Admit(op *insts.Descriptor) {
	u.busy = true
	u.op = op
	u.ctr = unit.NewCounter(1)
	u.last = false
	u.fetch.Reset()
	u.mask = nil
	u.vs1Subs = make(map[int][]byte)
	u.vs2Subs = make(map[int][]byte)
	u.maskAcc = make([]byte, u.vregBytes)
	u.found = false
	u.count = 0
	u.firstIdx = -1
	u.redAcc = 0
	u.packed = 0
	u.packBuf = make([]byte, op.DestRegCount()*u.vregBytes)
	u.outSub = make([]byte, u.vregBytes)
	u.scalarValid = false

	if op.VLZero {
		return
	}
	if op.Masked {
		u.fetch.Add(0, unit.OpMask)
	}
	if maskSetOp(op) {
		u.fetch.Add(op.Rd.Index, unit.OpVD)
	}
	if op.Rs2.IsVector {
		for s := 0; s < op.VS2RegCount(); s++ {
			u.fetch.Add(op.Rs2.Index+uint8(s), unit.OpVS2)
		}
	}
	if op.Rs1.IsVector {
		for s := 0; s < op.VS1RegCount(); s++ {
			u.fetch.Add(op.Rs1.Index+uint8(s), unit.OpVS1)
		}
	}
}

// latch routes fetched data to the buffer its fetch was scheduled for; gather
// with vs1 == vs2 still fills both source images.
func (u *Unit) latch(fe unit.Fetch, data []byte) {
	op := u.op
	switch fe.Op {
	case unit.OpMask:
		u.mask = data
	case unit.OpVD:
		u.maskAcc = data
	case unit.OpVS2:
		u.vs2Subs[int(fe.Index-op.Rs2.Index)] = data
	default:
		u.vs1Subs[int(fe.Index-op.Rs1.Index)] = data
	}
}

// steps returns the element-walk length: one step per element, plus the
// drain steps vcompress needs to emit its packed destination group.
func (u *Unit) steps() int {
	op := u.op
	switch op.Mode.Elem.Op {
	case insts.ElemMvXS, insts.ElemMvSX:
		return 1
	case insts.ElemCompress:
		return int(op.VL) + op.DestRegCount()
	default:
		return int(op.VL)
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
				u.latch(fe, port.Read(fe.Index))
				res.ClearRead |= hazard.Bit(fe.Index)
			}
		default:
			produced, haveOutput = u.step()
			if u.scalarValid {
				res.ScalarResult = u.scalar
				res.ScalarValid = true
				u.scalarValid = false
			}
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

// elemActive reports whether element i participates under the v0 mask.
func (u *Unit) elemActive(i int) bool {
	return !u.op.Masked || unit.MaskBit(u.mask, i)
}

// srcBit reads bit i of the vs2 mask source.
func (u *Unit) srcBit(i int) bool {
	return unit.MaskBit(u.vs2Subs[0], i)
}

// srcElem reads element i of the vs2 group at the operation element width.
func (u *Unit) srcElem(i int) uint64 {
	sewB := u.op.SEW.Bytes()
	global := i * sewB
	buf, ok := u.vs2Subs[global/u.vregBytes]
	if !ok {
		return 0
	}
	return loadLane(buf, global%u.vregBytes, sewB)
}

// idxElem reads the gather index for element i.
func (u *Unit) idxElem(i int) uint64 {
	op := u.op
	if !op.Rs1.IsVector {
		return uint64(op.Rs1.Value)
	}
	sewB := op.SEW.Bytes()
	global := i * sewB
	buf, ok := u.vs1Subs[global/u.vregBytes]
	if !ok {
		return 0
	}
	return loadLane(buf, global%u.vregBytes, sewB)
}

// step processes one element (or drain slot) and advances.
func (u *Unit) step() (unit.VRegWrite, bool) {
	op := u.op

	if op.VLZero {
		u.busy = false
		switch op.Mode.Elem.Op {
		case insts.ElemPop:
			u.scalar, u.scalarValid = 0, true
		case insts.ElemFirst:
			u.scalar, u.scalarValid = ^uint32(0), true
		}
		if !op.RdIsWritten() {
			return unit.VRegWrite{}, false
		}
		return unit.VRegWrite{
			GroupLast:  true,
			GroupBase:  op.Rd.Index,
			GroupCount: op.DestRegCount(),
		}, true
	}

	i := u.ctr.GroupIndex()
	total := u.steps()
	u.last = i == total-1

	w, have := u.element(i)

	u.ctr.Advance()
	if u.last {
		u.busy = false
	}
	return w, have
}

// element runs the per-op transform for walk position i.
func (u *Unit) element(i int) (unit.VRegWrite, bool) {
	op := u.op
	sewB := op.SEW.Bytes()

	switch op.Mode.Elem.Op {
	case insts.ElemMvXS:
		u.scalar = uint32(signExtend(u.srcElem(0), op.SEW.Bits()))
		u.scalarValid = true
		return unit.VRegWrite{}, false

	case insts.ElemMvSX:
		storeLane(u.outSub, 0, sewB, uint64(op.Rs1.Value))
		return u.subWrite(0, lowMask(sewB), true), true

	case insts.ElemPop:
		if u.elemActive(i) && u.srcBit(i) {
			u.count++
		}
		if u.last {
			u.scalar, u.scalarValid = u.count, true
		}
		return unit.VRegWrite{}, false

	case insts.ElemFirst:
		if u.firstIdx < 0 && u.elemActive(i) && u.srcBit(i) {
			u.firstIdx = int32(i)
		}
		if u.last {
			u.scalar, u.scalarValid = uint32(u.firstIdx), true
		}
		return unit.VRegWrite{}, false

	case insts.ElemMsbf, insts.ElemMsif, insts.ElemMsof:
		if u.elemActive(i) {
			set := u.srcBit(i)
			var r bool
			switch op.Mode.Elem.Op {
			case insts.ElemMsbf:
				r = !u.found && !set
			case insts.ElemMsif:
				r = !u.found
			case insts.ElemMsof:
				r = !u.found && set
			}
			bit := byte(1) << (uint(i) % 8)
			if r {
				u.maskAcc[i/8] |= bit
			} else {
				u.maskAcc[i/8] &^= bit
			}
			if set {
				u.found = true
			}
		}
		if u.last {
			return unit.VRegWrite{
				Enable:     true,
				Index:      op.Rd.Index,
				Mask:       lowMask(u.vregBytes),
				Data:       u.maskAcc,
				GroupLast:  true,
				GroupBase:  op.Rd.Index,
				GroupCount: 1,
			}, true
		}
		return unit.VRegWrite{}, false

	case insts.ElemIota:
		storeLane(u.outSub, i*sewB%u.vregBytes, sewB, uint64(u.count))
		if u.elemActive(i) && u.srcBit(i) {
			u.count++
		}
		return u.maybeEmit(i)

	case insts.ElemID:
		storeLane(u.outSub, i*sewB%u.vregBytes, sewB, uint64(i))
		return u.maybeEmit(i)

	case insts.ElemGather:
		idx := u.idxElem(i)
		maxElems := uint64(op.VS2RegCount() * u.vregBytes / sewB)
		var v uint64
		if idx < maxElems {
			v = u.srcElem(int(idx))
		}
		storeLane(u.outSub, i*sewB%u.vregBytes, sewB, v)
		return u.maybeEmit(i)

	case insts.ElemCompress:
		if i < int(op.VL) {
			if unit.MaskBit(u.vs1Subs[0], i) {
				storeLane(u.packBuf, u.packed*sewB, sewB, u.srcElem(i))
				u.packed++
			}
			return unit.VRegWrite{}, false
		}
		return u.emitPacked(i - int(op.VL)), true

	default: // reductions
		if u.ctr.Raw() == 0 {
			u.redAcc = loadLane(u.vs1Subs[0], 0, sewB)
		}
		if u.elemActive(i) {
			u.redAcc = u.reduce(u.redAcc, u.srcElem(i))
		}
		if u.last {
			storeLane(u.outSub, 0, sewB, u.redAcc)
			return u.subWrite(0, lowMask(sewB), true), true
		}
		return unit.VRegWrite{}, false
	}
}

// maybeEmit returns the destination sub write when element i is the last one
// landing in its sub-register.
func (u *Unit) maybeEmit(i int) (unit.VRegWrite, bool) {
	op := u.op
	sewB := op.SEW.Bytes()
	sub := i * sewB / u.vregBytes
	boundary := (i+1)*sewB%u.vregBytes == 0
	if !boundary && !u.last {
		return unit.VRegWrite{}, false
	}
	w := unit.VRegWrite{
		Enable:     true,
		Index:      op.Rd.Index + uint8(sub),
		Mask:       unit.WriteMaskFor(sub, u.vregBytes, op.SEW, op.VL, op.Masked, u.mask),
		Data:       u.outSub,
		GroupLast:  u.last,
		GroupBase:  op.Rd.Index,
		GroupCount: op.DestRegCount(),
	}
	u.outSub = make([]byte, u.vregBytes)
	return w, true
}

// emitPacked drains one sub-register of the compress result. Only the bytes
// holding packed elements are written; the rest of the group keeps its old
// contents.
func (u *Unit) emitPacked(sub int) unit.VRegWrite {
	op := u.op
	data := make([]byte, u.vregBytes)
	copy(data, u.packBuf[sub*u.vregBytes:])

	var mask uint64
	lo := sub * u.vregBytes
	for b := 0; b < u.vregBytes; b++ {
		if lo+b < u.packed*op.SEW.Bytes() {
			mask |= 1 << uint(b)
		}
	}
	return unit.VRegWrite{
		Enable:     mask != 0,
		Index:      op.Rd.Index + uint8(sub),
		Mask:       mask,
		Data:       data,
		GroupLast:  u.last,
		GroupBase:  op.Rd.Index,
		GroupCount: op.DestRegCount(),
	}
}

// subWrite builds a single-register write from the current out image.
func (u *Unit) subWrite(sub int, mask uint64, groupLast bool) unit.VRegWrite {
	op := u.op
	w := unit.VRegWrite{
		Enable:     true,
		Index:      op.Rd.Index + uint8(sub),
		Mask:       mask,
		Data:       u.outSub,
		GroupLast:  groupLast,
		GroupBase:  op.Rd.Index,
		GroupCount: op.DestRegCount(),
	}
	u.outSub = make([]byte, u.vregBytes)
	return w
}

// reduce folds one source element into the accumulator.
func (u *Unit) reduce(acc, v uint64) uint64 {
	op := u.op
	bits := op.SEW.Bits()
	laneMask := lowMask(bits)
	sa, sv := signExtend(acc, bits), signExtend(v, bits)

	switch op.Mode.Elem.Op {
	case insts.ElemRedSum:
		return (acc + v) & laneMask
	case insts.ElemRedAnd:
		return acc & v & laneMask
	case insts.ElemRedOr:
		return (acc | v) & laneMask
	case insts.ElemRedXor:
		return (acc ^ v) & laneMask
	case insts.ElemRedMinU:
		if v&laneMask < acc&laneMask {
			return v & laneMask
		}
		return acc & laneMask
	case insts.ElemRedMin:
		if sv < sa {
			return v & laneMask
		}
		return acc & laneMask
	case insts.ElemRedMaxU:
		if v&laneMask > acc&laneMask {
			return v & laneMask
		}
		return acc & laneMask
	case insts.ElemRedMax:
		if sv > sa {
			return v & laneMask
		}
		return acc & laneMask
	default:
		return acc
	}
}

// Reset returns the unit to idle and drops queued writes.
func (u *Unit) Reset() {
	u.busy = false
	u.op = nil
	u.fetch.Reset()
	u.stage.Reset()
	u.wq.Reset()
	u.scalarValid = false
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
