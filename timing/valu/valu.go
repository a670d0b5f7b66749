// Package valu implements the staged arithmetic-logic execution unit. It
// iterates one destination sub-register per step, fetching source
// sub-registers over the shared read port as the iteration crosses their
// boundaries, and enqueues masked writes into the delayed write queue.
package valu

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/timing/hazard"
	"github.com/vproclab/vvsim/timing/unit"
)

// Unit is the ALU execution unit.
type Unit struct {
	vregBytes int

	busy bool
	op   *insts.Descriptor
	ctr  unit.Counter
	last bool

	fetch unit.FetchQueue
	mask  []byte
	vs1   []byte
	vs2   []byte // latched wide window: current and previous source regs
	vs2Lo []byte
	vd    []byte

	// maskAcc accumulates mask-result bits across the group for compare
	// and carry-out operations, which write a single register at the end.
	// It starts as the old destination value so inactive and tail bits
	// survive the byte-granular write port.
	maskAcc []byte

	vxsat bool

	stage *unit.Stage[unit.VRegWrite]
	wq    *unit.WriteQueue
}

// New creates an ALU unit for the given register width in bytes.
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

// SatFlag returns and clears the saturation flag accumulated by saturating
// operations since the last call.
func (u *Unit) SatFlag() bool {
	s := u.vxsat
	u.vxsat = false
	return s
}

// Admit accepts one decoded operation. The caller must have checked Busy.
func (u *Unit) Admit(op *insts.Descriptor) {
	u.busy = true
	u.op = op
	u.ctr = unit.NewCounter(1)
	u.last = false
	u.fetch.Reset()
	u.mask = nil
	u.vs1 = nil
	u.vs2 = nil
	u.vs2Lo = nil
	u.maskAcc = make([]byte, u.vregBytes)

	if op.Masked && !op.VLZero {
		u.fetch.Add(0, unit.OpMask)
	}
	if maskDest(op) && !op.VLZero {
		u.fetch.Add(op.Rd.Index, unit.OpVD)
	}
	u.scheduleStep(0)
}

// steps returns the number of iteration steps for the current operation.
func (u *Unit) steps() int {
	op := u.op
	if maskDest(op) {
		if op.Mode.ALU.Op >= insts.AluMAnd {
			return 1 // mask logic combines two single registers
		}
		return op.EMUL.Count() // compares iterate the source group
	}
	return op.DestEMUL().Count()
}

// scheduleStep queues the register reads step k needs that are not already
// latched.
func (u *Unit) scheduleStep(k int) {
	op := u.op
	if op.VLZero {
		return
	}

	if op.Rs2.IsVector {
		for _, idx := range u.vs2Subs(k) {
			u.fetch.Add(idx, unit.OpVS2)
		}
	}
	if op.Rs1.IsVector {
		sub := k
		if op.WidthClass == insts.WidthWide || op.WidthClass == insts.WidthWideVS2 {
			sub = k / 2
		}
		if op.WidthClass != insts.WidthWide || k%2 == 0 {
			if op.WidthClass != insts.WidthWideVS2 || k%2 == 0 {
				u.fetch.Add(op.Rs1.Index+uint8(sub), unit.OpVS1)
			}
		}
	}
	if op.RdIsSource() {
		u.fetch.Add(op.Rd.Index+uint8(k), unit.OpVD)
	}
}

// vs2Subs lists the vs2 sub-registers step k consumes for the first time.
func (u *Unit) vs2Subs(k int) []uint8 {
	op := u.op
	base := op.Rs2.Index
	switch {
	case op.Mode.ALU.ExtFactor > 0:
		f := int(op.Mode.ALU.ExtFactor)
		if k%f == 0 {
			return []uint8{base + uint8(k/f)}
		}
		return nil
	case op.WidthClass == insts.WidthWide:
		if k%2 == 0 {
			return []uint8{base + uint8(k/2)}
		}
		return nil
	case op.WidthClass == insts.WidthNarrow:
		return []uint8{base + uint8(2*k), base + uint8(2*k+1)}
	default:
		return []uint8{base + uint8(k)}
	}
}

// latch stores fetched data into the operand buffer its fetch was scheduled
// for. Routing by operand role keeps overlapping register names (vs1 == vs2,
// destination used as source) from crossing buffers.
func (u *Unit) latch(operand unit.Operand, data []byte) {
	switch operand {
	case unit.OpMask:
		u.mask = data
	case unit.OpVD:
		if maskDest(u.op) {
			u.maskAcc = data
		} else {
			u.vd = data
		}
	case unit.OpVS2:
		// The previous fetch shifts down so narrowing and slide-style
		// extraction can span two registers.
		u.vs2Lo = u.vs2
		u.vs2 = data
	default:
		u.vs1 = data
	}
}

// Tick advances the unit one cycle. port is non-nil only on cycles the
// read-port arbiter granted this unit.
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

// step runs the transform for the current iteration step and advances.
func (u *Unit) step() (unit.VRegWrite, bool) {
	op := u.op
	k := u.ctr.GroupIndex()
	total := u.steps()
	u.last = k == total-1

	var w unit.VRegWrite
	have := false

	if op.VLZero {
		// Zero-length operations produce no writes but still release
		// the group hazard through the queue.
		w = unit.VRegWrite{
			GroupLast:  true,
			GroupBase:  op.Rd.Index,
			GroupCount: op.DestRegCount(),
		}
		u.busy = false
		return w, true
	}

	if maskDest(op) {
		u.maskStep(k)
		if u.last {
			w = u.maskWrite()
			have = true
		}
	} else {
		w = u.vectorWrite(k)
		have = true
	}

	u.ctr.Advance()
	if u.last {
		u.busy = false
	} else {
		u.scheduleStep(u.ctr.GroupIndex())
	}
	return w, have
}

// maskDest reports whether the destination is a single mask register.
func maskDest(op *insts.Descriptor) bool { return op.Mode.ALU.MaskResult }

// vectorWrite computes one destination sub-register for element-wise
// operations.
func (u *Unit) vectorWrite(k int) unit.VRegWrite {
	op := u.op
	sewB := op.SEW.Bytes()
	out := make([]byte, u.vregBytes)

	destB := sewB
	if op.WidthClass == insts.WidthWide || op.WidthClass == insts.WidthWideVS2 {
		destB = 2 * sewB
	}
	elems := u.vregBytes / destB

	for e := 0; e < elems; e++ {
		elemIdx := k*elems + e
		a := u.operandVS2(k, e, elemIdx)
		b := u.operandVS1(k, e, elemIdx)
		r := u.lane(a, b, elemIdx)
		storeLane(out, e*destB, destB, r)
	}

	mask := unit.WriteMaskFor(k, u.vregBytes, destSEW(op), op.VL, op.Masked && op.Mode.ALU.Op != insts.AluMerge && op.Mode.ALU.Op != insts.AluAdc && op.Mode.ALU.Op != insts.AluSbc, u.mask)
	return unit.VRegWrite{
		Enable:     true,
		Index:      op.Rd.Index + uint8(k),
		Mask:       mask,
		Data:       out,
		GroupLast:  u.last,
		GroupBase:  op.Rd.Index,
		GroupCount: op.DestRegCount(),
	}
}

// destSEW returns the element width of the destination.
func destSEW(op *insts.Descriptor) insts.SEW {
	switch op.WidthClass {
	case insts.WidthWide, insts.WidthWideVS2:
		return op.SEW + 1
	default:
		return op.SEW
	}
}

// operandVS2 extracts the vs2 lane value for element e of dest sub k.
func (u *Unit) operandVS2(k, e, elemIdx int) uint64 {
	op := u.op
	sewB := op.SEW.Bytes()
	if !op.Rs2.IsVector {
		return uint64(op.Rs2.Value)
	}

	switch {
	case op.Mode.ALU.ExtFactor > 0:
		f := int(op.Mode.ALU.ExtFactor)
		srcB := sewB / f
		perReg := u.vregBytes / srcB
		off := (elemIdx % perReg) * srcB
		v := loadLane(u.vs2, off, srcB)
		if op.Mode.ALU.Signed {
			return uint64(signExtend(v, srcB*8))
		}
		return v
	case op.WidthClass == insts.WidthWide:
		srcElems := u.vregBytes / (2 * sewB)
		off := ((k%2)*srcElems + e) * sewB
		v := loadLane(u.vs2, off, sewB)
		if op.Mode.ALU.Signed {
			return uint64(signExtend(v, sewB*8))
		}
		return v
	case op.WidthClass == insts.WidthWideVS2:
		return loadLane(u.vs2, e*2*sewB, 2*sewB)
	case op.WidthClass == insts.WidthNarrow:
		// Low destination half comes from the first wide register
		// (shifted into vs2Lo), high half from the second.
		half := u.vregBytes / (2 * sewB)
		src := u.vs2Lo
		idx := e
		if e >= half {
			src = u.vs2
			idx = e - half
		}
		return loadLane(src, idx*2*sewB, 2*sewB)
	default:
		return loadLane(u.vs2, e*sewB, sewB)
	}
}

// operandVS1 extracts the rs1/vs1/imm lane value for element e of dest sub k.
func (u *Unit) operandVS1(k, e, elemIdx int) uint64 {
	op := u.op
	sewB := op.SEW.Bytes()
	if !op.Rs1.IsVector {
		return uint64(op.Rs1.Value)
	}
	switch op.WidthClass {
	case insts.WidthWide, insts.WidthWideVS2:
		srcElems := u.vregBytes / (2 * sewB)
		off := ((k%2)*srcElems + e) * sewB
		v := loadLane(u.vs1, off, sewB)
		if op.Mode.ALU.Signed {
			return uint64(signExtend(v, sewB*8))
		}
		return v
	default:
		return loadLane(u.vs1, e*sewB, sewB)
	}
}

// maskStep accumulates compare/carry-out result bits for source sub k.
func (u *Unit) maskStep(k int) {
	op := u.op
	if op.Mode.ALU.Op >= insts.AluMAnd {
		u.maskLogic()
		return
	}
	sewB := op.SEW.Bytes()
	elems := u.vregBytes / sewB
	predicated := op.Masked &&
		op.Mode.ALU.Op != insts.AluMAdc && op.Mode.ALU.Op != insts.AluMSbc
	for e := 0; e < elems; e++ {
		elemIdx := k*elems + e
		if uint32(elemIdx) >= op.VL {
			continue
		}
		if predicated && !unit.MaskBit(u.mask, elemIdx) {
			continue // inactive bits keep their old value
		}
		a := loadLane(u.vs2, e*sewB, sewB)
		var b uint64
		if op.Rs1.IsVector {
			b = loadLane(u.vs1, e*sewB, sewB)
		} else {
			b = uint64(op.Rs1.Value)
		}
		bit := byte(1) << (uint(elemIdx) % 8)
		if u.compareLane(a, b, elemIdx) {
			u.maskAcc[elemIdx/8] |= bit
		} else {
			u.maskAcc[elemIdx/8] &^= bit
		}
	}
}

// maskLogic combines two mask registers bitwise over the first vl bits.
func (u *Unit) maskLogic() {
	op := u.op
	for i := range u.maskAcc {
		if i*8 >= int(op.VL) {
			break // tail bits keep their old value
		}
		a := u.vs2Or(i)
		b := u.vs1Or(i)
		var r byte
		switch op.Mode.ALU.Op {
		case insts.AluMAnd:
			r = a & b
		case insts.AluMNand:
			r = ^(a & b)
		case insts.AluMAndNot:
			r = a &^ b
		case insts.AluMXor:
			r = a ^ b
		case insts.AluMOr:
			r = a | b
		case insts.AluMNor:
			r = ^(a | b)
		case insts.AluMOrNot:
			r = a | ^b
		case insts.AluMXnor:
			r = ^(a ^ b)
		}
		if rem := int(op.VL) - i*8; rem < 8 {
			keep := byte(0xFF) << uint(rem)
			r = r&^keep | u.maskAcc[i]&keep
		}
		u.maskAcc[i] = r
	}
}

func (u *Unit) vs2Or(i int) byte {
	if i < len(u.vs2) {
		return u.vs2[i]
	}
	return 0
}

func (u *Unit) vs1Or(i int) byte {
	if i < len(u.vs1) {
		return u.vs1[i]
	}
	return 0
}

// maskWrite emits the single mask-register write at the end of the group.
// The accumulator already merged inactive and tail bits from the old
// destination value, so the write covers the whole register.
func (u *Unit) maskWrite() unit.VRegWrite {
	return unit.VRegWrite{
		Enable:     true,
		Index:      u.op.Rd.Index,
		Mask:       lowMask(u.vregBytes),
		Data:       u.maskAcc,
		GroupLast:  true,
		GroupBase:  u.op.Rd.Index,
		GroupCount: 1,
	}
}

// compareLane evaluates compare and carry-out operations for one element.
func (u *Unit) compareLane(a, b uint64, elemIdx int) bool {
	op := u.op
	bits := op.SEW.Bits()
	sa, sb := signExtend(a, bits), signExtend(b, bits)
	switch op.Mode.ALU.Op {
	case insts.AluMSeq:
		return a == b
	case insts.AluMSne:
		return a != b
	case insts.AluMSltU:
		return a < b
	case insts.AluMSlt:
		return sa < sb
	case insts.AluMSleU:
		return a <= b
	case insts.AluMSle:
		return sa <= sb
	case insts.AluMSgtU:
		return a > b
	case insts.AluMSgt:
		return sa > sb
	case insts.AluMAdc:
		sum := a + b + u.carryIn(elemIdx)
		return sum>>uint(bits) != 0
	case insts.AluMSbc:
		return a < b+u.carryIn(elemIdx)
	}
	return false
}

// carryIn returns the v0 carry bit for carry operations, 0 otherwise.
func (u *Unit) carryIn(elemIdx int) uint64 {
	if !u.op.Masked {
		return 0
	}
	if unit.MaskBit(u.mask, elemIdx) {
		return 1
	}
	return 0
}

// lane evaluates the element transform for vector-destination operations.
func (u *Unit) lane(a, b uint64, elemIdx int) uint64 {
	op := u.op
	bits := destSEW(op).Bits()
	srcBits := op.SEW.Bits()
	laneMask := lowMask(bits)
	sa, sb := signExtend(a, srcBits), signExtend(b, srcBits)

	switch op.Mode.ALU.Op {
	case insts.AluAdd:
		if op.WidthClass != insts.WidthSingle {
			return uint64(int64(a)+int64(b)) & laneMask
		}
		return (a + b) & laneMask
	case insts.AluSub:
		if op.WidthClass != insts.WidthSingle {
			return uint64(int64(a)-int64(b)) & laneMask
		}
		return (a - b) & laneMask
	case insts.AluRSub:
		return (b - a) & laneMask
	case insts.AluAnd:
		return a & b & laneMask
	case insts.AluOr:
		return (a | b) & laneMask
	case insts.AluXor:
		return (a ^ b) & laneMask
	case insts.AluSll:
		return (a << (b % uint64(bits))) & laneMask
	case insts.AluSrl:
		return (a & laneMask) >> (b % uint64(bits))
	case insts.AluSra:
		return uint64(signExtend(a, bits)>>(b%uint64(bits))) & laneMask
	case insts.AluMinU:
		if a < b {
			return a & laneMask
		}
		return b & laneMask
	case insts.AluMin:
		if sa < sb {
			return a & laneMask
		}
		return b & laneMask
	case insts.AluMaxU:
		if a > b {
			return a & laneMask
		}
		return b & laneMask
	case insts.AluMax:
		if sa > sb {
			return a & laneMask
		}
		return b & laneMask
	case insts.AluAdc:
		return (a + b + u.carryIn(elemIdx)) & laneMask
	case insts.AluSbc:
		return (a - b - u.carryIn(elemIdx)) & laneMask
	case insts.AluMerge:
		if unit.MaskBit(u.mask, elemIdx) {
			return b & laneMask
		}
		return a & laneMask
	case insts.AluMv:
		return b & laneMask
	case insts.AluSAddU:
		r := a + b
		if r > laneMask {
			u.vxsat = true
			return laneMask
		}
		return r
	case insts.AluSAdd:
		return u.satSigned(sa+sb, bits)
	case insts.AluSSubU:
		if a < b {
			u.vxsat = true
			return 0
		}
		return a - b
	case insts.AluSSub:
		return u.satSigned(sa-sb, bits)
	case insts.AluAAddU:
		return u.roundShift(a+b, 1) & laneMask
	case insts.AluAAdd:
		return uint64(u.roundShiftS(sa+sb, 1)) & laneMask
	case insts.AluASubU:
		return u.roundShift(a-b, 1) & laneMask
	case insts.AluASub:
		return uint64(u.roundShiftS(sa-sb, 1)) & laneMask
	case insts.AluSSrl:
		return u.roundShift(a&laneMask, uint(b%uint64(bits))) & laneMask
	case insts.AluSSra:
		return uint64(u.roundShiftS(signExtend(a, bits), uint(b%uint64(bits)))) & laneMask
	case insts.AluNSrl:
		wide := lowMask(2 * bits)
		return (a & wide) >> (b % uint64(2*bits)) & laneMask
	case insts.AluNSra:
		return uint64(signExtend(a, 2*bits)>>(b%uint64(2*bits))) & laneMask
	case insts.AluNClipU:
		r := u.roundShift(a&lowMask(2*bits), uint(b%uint64(2*bits)))
		if r > laneMask {
			u.vxsat = true
			return laneMask
		}
		return r
	case insts.AluNClip:
		r := u.roundShiftS(signExtend(a, 2*bits), uint(b%uint64(2*bits)))
		return u.satSigned(r, bits)
	case insts.AluZExt:
		return a & laneMask
	case insts.AluSExt:
		return a & laneMask // sign extension applied at operand extraction
	default:
		return 0
	}
}

// satSigned clamps a signed value into the destination width, recording
// saturation.
func (u *Unit) satSigned(v int64, bits int) uint64 {
	max := int64(lowMask(bits) >> 1)
	min := -max - 1
	switch {
	case v > max:
		u.vxsat = true
		return uint64(max) & lowMask(bits)
	case v < min:
		u.vxsat = true
		return uint64(min) & lowMask(bits)
	default:
		return uint64(v) & lowMask(bits)
	}
}

// roundShift shifts right with the configured fixed-point rounding mode.
func (u *Unit) roundShift(v uint64, sh uint) uint64 {
	if sh == 0 {
		return v
	}
	r := v >> sh
	switch u.op.VXRM {
	case insts.VXRMRNU:
		r = (v + (1 << (sh - 1))) >> sh
	case insts.VXRMRNE:
		r = v >> sh
		if v>>(sh-1)&1 == 1 && (v&lowMask(int(sh-1)) != 0 || r&1 == 1) {
			r++
		}
	case insts.VXRMROD:
		if r&1 == 0 && v&lowMask(int(sh)) != 0 {
			r |= 1
		}
	}
	return r
}

func (u *Unit) roundShiftS(v int64, sh uint) int64 {
	if sh == 0 {
		return v
	}
	r := v >> sh
	switch u.op.VXRM {
	case insts.VXRMRNU:
		r = (v + (1 << (sh - 1))) >> sh
	case insts.VXRMRNE:
		if uint64(v)>>(sh-1)&1 == 1 && (uint64(v)&lowMask(int(sh-1)) != 0 || r&1 == 1) {
			r++
		}
	case insts.VXRMROD:
		if r&1 == 0 && uint64(v)&lowMask(int(sh)) != 0 {
			r |= 1
		}
	}
	return r
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

// loadLane reads a little-endian lane of n bytes at off.
func loadLane(buf []byte, off, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		if off+i < len(buf) {
			v |= uint64(buf[off+i]) << (8 * uint(i))
		}
	}
	return v
}

// storeLane writes a little-endian lane of n bytes at off.
func storeLane(buf []byte, off, n int, v uint64) {
	for i := 0; i < n; i++ {
		if off+i < len(buf) {
			buf[off+i] = byte(v >> (8 * uint(i)))
		}
	}
}

// signExtend interprets the low bits of v as a signed value.
func signExtend(v uint64, bits int) int64 {
	sh := 64 - uint(bits)
	return int64(v<<sh) >> sh
}

// lowMask returns a mask of the low n bits.
func lowMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (1 << uint(n)) - 1
}
