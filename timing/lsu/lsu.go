// Package lsu implements the staged load-store execution unit. It walks the
// destination (or store-data) group one sub-register at a time: fetch the
// registers the sub needs, issue the memory transactions covering its
// elements, collect the in-order responses, then commit the sub and move on.
// Unit-stride accesses issue one full-width transaction per memory word;
// strided and indexed accesses issue one transaction per element.
package lsu

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/mem"
	"github.com/vproclab/vvsim/timing/hazard"
	"github.com/vproclab/vvsim/timing/unit"
)

type phase uint8

const (
	phaseFetch phase = iota
	phaseIssue
	phaseDrain
)

// reqMeta records where a granted read transaction's bytes land.
type reqMeta struct {
	dstByte int // global byte offset within the data group
	memOff  int // byte offset within the response word
	n       int
}

// Unit is the load-store execution unit.
type Unit struct {
	vregBytes int

	busy  bool
	op    *insts.Descriptor
	last  bool
	phase phase
	sub   int // current data sub-register

	issueAt     int // next element (or memory word) to issue for this sub
	splitOff    int // bytes of the current element already issued
	outstanding int
	metas       []reqMeta

	fetch    unit.FetchQueue
	mask     []byte
	data     []byte         // store data for the current sub
	offsSubs map[int][]byte // buffered index-offset sub-registers

	asm []byte // load assembly buffer for the current sub
	err bool

	stage *unit.Stage[unit.VRegWrite]
	wq    *unit.WriteQueue
}

// New creates a load-store unit for the given register width in bytes.
func New(vregBytes, writeLatency int, stageBuffered bool) *Unit {
	return &Unit{
		vregBytes: vregBytes,
		stage:     unit.NewStage[unit.VRegWrite](stageBuffered),
		wq:        unit.NewWriteQueue(writeLatency),
	}
}

// Busy reports whether an operation is still in flight.
func (u *Unit) Busy() bool { return u.busy }

// NeedsRead reports whether the unit wants the shared read port this cycle.
func (u *Unit) NeedsRead() bool { return u.busy && u.fetch.Pending() }

// ErrFlag returns and clears the accumulated bus error flag.
func (u *Unit) ErrFlag() bool {
	e := u.err
	u.err = false
	return e
}

// dataBytes returns the register element size in bytes: the memory element
// width for unit-stride and strided accesses, the configured element width
// for indexed accesses, whose memory elements are register elements.
func (u *Unit) dataBytes() int {
	if u.op.Mode.Lsu.Stride == insts.StrideIndexed {
		return u.op.SEW.Bytes()
	}
	return u.op.Mode.Lsu.EEW.Bytes()
}

// Admit accepts one decoded operation.
func (u *Unit) Admit(op *insts.Descriptor) {
	u.busy = true
	u.op = op
	u.last = false
	u.phase = phaseFetch
	u.sub = 0
	u.issueAt = 0
	u.outstanding = 0
	u.metas = nil
	u.fetch.Reset()
	u.mask = nil
	u.data = nil
	u.offsSubs = make(map[int][]byte)
	u.asm = nil

	if op.Masked && !op.VLZero {
		u.fetch.Add(0, unit.OpMask)
	}
	u.scheduleSub(0)
}

// subByteRange returns the data-group byte range [lo, hi) sub k covers,
// clipped to the active vector length.
func (u *Unit) subByteRange(k int) (int, int) {
	lo := k * u.vregBytes
	hi := lo + u.vregBytes
	if lim := int(u.op.VL) * u.dataBytes(); hi > lim {
		hi = lim
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// offsetSubsFor returns the index-offset sub-registers covering sub k's
// elements.
func (u *Unit) offsetSubsFor(k int) []int {
	lo, hi := u.subByteRange(k)
	if lo == hi {
		return nil
	}
	db := u.dataBytes()
	ob := u.op.Mode.Lsu.EEW.Bytes()
	first := (lo / db * ob) / u.vregBytes
	last := ((hi/db - 1) * ob) / u.vregBytes
	var out []int
	for s := first; s <= last; s++ {
		out = append(out, s)
	}
	return out
}

// scheduleSub queues the register fetches sub k needs.
func (u *Unit) scheduleSub(k int) {
	op := u.op
	if op.VLZero {
		return
	}
	if op.Mode.Lsu.Stride == insts.StrideIndexed {
		need := u.offsetSubsFor(k)
		for held := range u.offsSubs {
			keep := false
			for _, s := range need {
				if s == held {
					keep = true
				}
			}
			if !keep {
				delete(u.offsSubs, held)
			}
		}
		for _, s := range need {
			if _, ok := u.offsSubs[s]; !ok {
				u.fetch.Add(op.Rs2.Index+uint8(s), unit.OpVS2)
			}
		}
	}
	if op.Mode.Lsu.Store {
		u.fetch.Add(op.Rd.Index+uint8(k), unit.OpVD)
	}
}

// latch routes fetched data to the buffer its fetch was scheduled for, so an
// indexed store naming the same register for data and offsets fills both.
func (u *Unit) latch(fe unit.Fetch, data []byte) {
	switch fe.Op {
	case unit.OpMask:
		u.mask = data
	case unit.OpVD:
		u.data = data
	default:
		u.offsSubs[int(fe.Index-u.op.Rs2.Index)] = data
	}
}

// offsetFor returns the zero-extended index offset of element e.
func (u *Unit) offsetFor(e int) uint32 {
	ob := u.op.Mode.Lsu.EEW.Bytes()
	global := e * ob
	buf, ok := u.offsSubs[global/u.vregBytes]
	if !ok {
		return 0
	}
	off := global % u.vregBytes
	var v uint32
	for i := 0; i < ob; i++ {
		v |= uint32(buf[off+i]) << (8 * uint(i))
	}
	return v
}

// active reports whether element e participates.
func (u *Unit) active(e int) bool {
	if uint32(e) >= u.op.VL {
		return false
	}
	return !u.op.Masked || unit.MaskBit(u.mask, e)
}

// elemAddr returns the memory address of element e.
func (u *Unit) elemAddr(e int) uint32 {
	op := u.op
	base := op.Rs1.Value
	switch op.Mode.Lsu.Stride {
	case insts.StrideStrided:
		return base + uint32(int32(op.Rs2.Value)*int32(e))
	case insts.StrideIndexed:
		return base + u.offsetFor(e)
	default:
		return base + uint32(e*u.dataBytes())
	}
}

// Tick advances the unit one cycle. The memory port's own Tick is driven by
// the core, after all units ran.
func (u *Unit) Tick(port unit.ReadPort, m mem.Port) unit.Result {
	var res unit.Result
	var produced unit.VRegWrite
	haveOutput := false

	if u.busy {
		u.consume(m)
		switch u.phase {
		case phaseFetch:
			if u.fetch.Pending() {
				if port != nil {
					fe := u.fetch.Pop()
					u.latch(fe, port.Read(fe.Index))
					res.ClearRead |= hazard.Bit(fe.Index)
				}
			} else {
				u.beginSub()
				produced, haveOutput = u.run(m)
			}
		default:
			produced, haveOutput = u.run(m)
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

// beginSub initializes issue state for the current sub-register.
func (u *Unit) beginSub() {
	u.phase = phaseIssue
	u.issueAt = -1
	u.splitOff = 0
	u.outstanding = 0
	u.metas = nil
	u.asm = make([]byte, u.vregBytes)
}

// consume applies this cycle's memory response, if any.
func (u *Unit) consume(m mem.Port) {
	resp := m.Response()
	if !resp.Valid || u.outstanding == 0 {
		return
	}
	u.outstanding--
	meta := u.metas[0]
	u.metas = u.metas[1:]
	if resp.Err {
		u.err = true
		return
	}
	if u.op.Mode.Lsu.Store {
		return
	}
	subBase := u.sub * u.vregBytes
	for i := 0; i < meta.n; i++ {
		u.asm[meta.dstByte-subBase+i] = byte(resp.Data >> (8 * uint(meta.memOff+i)))
	}
}

// run issues at most one memory transaction, or finishes the sub when all of
// its responses drained.
func (u *Unit) run(m mem.Port) (unit.VRegWrite, bool) {
	op := u.op
	total := op.EMUL.Count()

	if op.VLZero {
		u.busy = false
		if op.Mode.Lsu.Store {
			return unit.VRegWrite{}, false
		}
		return unit.VRegWrite{
			GroupLast:  true,
			GroupBase:  op.Rd.Index,
			GroupCount: total,
		}, true
	}

	if u.phase == phaseIssue {
		u.issue(m)
	}
	if u.phase == phaseDrain && u.outstanding == 0 {
		return u.finishSub()
	}
	return unit.VRegWrite{}, false
}

// issue sends the next transaction for the current sub.
func (u *Unit) issue(m mem.Port) {
	op := u.op
	wb := m.WidthBytes()
	lo, hi := u.subByteRange(u.sub)
	db := u.dataBytes()

	if op.Mode.Lsu.Stride == insts.StrideUnit {
		if u.issueAt < 0 {
			u.issueAt = int(op.Rs1.Value) + lo
			u.issueAt &^= wb - 1 // first word covering the sub
		}
		end := int(op.Rs1.Value) + hi
		for u.issueAt < end {
			a := u.issueAt
			if u.tryWord(m, a, lo, hi, wb) {
				u.issueAt += wb
				return
			}
			if u.issueAt == a {
				return // not granted, retry next cycle
			}
		}
		u.phase = phaseDrain
		return
	}

	if u.issueAt < 0 {
		u.issueAt = lo / db
	}
	endElem := hi / db
	for u.issueAt < endElem {
		e := u.issueAt
		if !u.active(e) {
			u.issueAt++
			continue
		}
		if u.tryElem(m, e, wb) {
			u.issueAt++
		}
		return
	}
	u.phase = phaseDrain
}

// tryWord submits one unit-stride word transaction. Returns false when no
// byte of the word is live, in which case the caller skips it.
func (u *Unit) tryWord(m mem.Port, addr, lo, hi, wb int) bool {
	op := u.op
	base := int(op.Rs1.Value)
	db := u.dataBytes()

	memOff := 0
	if base+lo > addr {
		memOff = base + lo - addr
	}
	n := wb - memOff
	if addr+memOff+n > base+hi {
		n = base + hi - (addr + memOff)
	}
	if n <= 0 {
		u.issueAt += wb
		return false
	}
	dstByte := addr + memOff - base

	req := mem.Request{Addr: uint32(addr)}
	if op.Mode.Lsu.Store {
		subBase := u.sub * u.vregBytes
		for i := 0; i < n; i++ {
			g := dstByte + i
			if op.Masked && !unit.MaskBit(u.mask, g/db) {
				continue
			}
			req.ByteEn |= 1 << uint(memOff+i)
			req.WData |= uint64(u.data[g-subBase]) << (8 * uint(memOff+i))
		}
		req.We = true
		if req.ByteEn == 0 {
			u.issueAt += wb
			return false
		}
	}
	if !m.Submit(req) {
		return false
	}
	u.outstanding++
	u.metas = append(u.metas, reqMeta{dstByte: dstByte, memOff: memOff, n: n})
	return true
}

// tryElem submits one strided or indexed element transaction, splitting an
// element that crosses a memory word boundary over multiple requests.
// Returns true once the whole element has been issued.
func (u *Unit) tryElem(m mem.Port, e, wb int) bool {
	op := u.op
	db := u.dataBytes()
	addr := u.elemAddr(e) + uint32(u.splitOff)
	word := addr &^ uint32(wb-1)
	memOff := int(addr - word)
	n := db - u.splitOff
	if n > wb-memOff {
		n = wb - memOff
	}

	req := mem.Request{Addr: word}
	if op.Mode.Lsu.Store {
		subBase := u.sub * u.vregBytes
		for i := 0; i < n; i++ {
			req.ByteEn |= 1 << uint(memOff+i)
			req.WData |= uint64(u.data[e*db+u.splitOff-subBase+i]) << (8 * uint(memOff+i))
		}
		req.We = true
	}
	if !m.Submit(req) {
		return false
	}
	u.outstanding++
	u.metas = append(u.metas, reqMeta{dstByte: e*db + u.splitOff, memOff: memOff, n: n})
	u.splitOff += n
	if u.splitOff < db {
		return false // remainder of the element goes out next cycle
	}
	u.splitOff = 0
	return true
}

// finishSub commits the current sub-register and advances to the next.
func (u *Unit) finishSub() (unit.VRegWrite, bool) {
	op := u.op
	total := op.EMUL.Count()
	u.last = u.sub == total-1

	var w unit.VRegWrite
	haveOutput := false
	if !op.Mode.Lsu.Store {
		eew := op.SEW
		if op.Mode.Lsu.Stride != insts.StrideIndexed {
			eew = op.Mode.Lsu.EEW
		}
		w = unit.VRegWrite{
			Enable:     true,
			Index:      op.Rd.Index + uint8(u.sub),
			Mask:       unit.WriteMaskFor(u.sub, u.vregBytes, eew, op.VL, op.Masked, u.mask),
			Data:       u.asm,
			GroupLast:  u.last,
			GroupBase:  op.Rd.Index,
			GroupCount: total,
		}
		haveOutput = true
	}

	if u.last {
		u.busy = false
	} else {
		u.sub++
		u.phase = phaseFetch
		u.scheduleSub(u.sub)
	}
	return w, haveOutput
}

// Reset returns the unit to idle and drops queued writes.
func (u *Unit) Reset() {
	u.busy = false
	u.op = nil
	u.fetch.Reset()
	u.stage.Reset()
	u.wq.Reset()
	u.err = false
	u.outstanding = 0
	u.metas = nil
}
