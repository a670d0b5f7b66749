// Package core provides the cycle-accurate vector coprocessor core model. It
// couples the decoder, the hazard tracker, the five execution units, the
// register file gateway and the memory port into a single lockstep Tick, and
// exposes the scalar-side handshake: instruction issue, CSR access and the
// delayed scalar result channel.
package core

import (
	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/mem"
	"github.com/vproclab/vvsim/timing/hazard"
	"github.com/vproclab/vvsim/timing/latency"
	"github.com/vproclab/vvsim/timing/lsu"
	"github.com/vproclab/vvsim/timing/sld"
	"github.com/vproclab/vvsim/timing/unit"
	"github.com/vproclab/vvsim/timing/valu"
	"github.com/vproclab/vvsim/timing/velem"
	"github.com/vproclab/vvsim/timing/vmul"
	"github.com/vproclab/vvsim/vreg"
)

// Vector CSR addresses.
const (
	CSRVStart = 0x008
	CSRVxsat  = 0x009
	CSRVxrm   = 0x00A
	CSRVcsr   = 0x00F
	CSRVl     = 0xC20
	CSRVtype  = 0xC21
	CSRVlenb  = 0xC22
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of vector instructions accepted.
	Instructions uint64
	// Illegal counts offered instructions rejected as illegal.
	Illegal uint64
	// Stalls counts issue attempts refused because of hazards or a busy
	// unit.
	Stalls uint64
	// WriteConflicts counts cycles two units tried to commit a register
	// write at once.
	WriteConflicts uint64
	// BusErrors counts memory transactions that completed with the error
	// flag.
	BusErrors uint64
	// Misaligned counts accepted unit-stride accesses whose base address
	// was not aligned to the memory port width.
	Misaligned uint64
}

// IssueResult reports the outcome of offering one instruction to the core.
type IssueResult struct {
	// Accepted is false when the instruction must be offered again next
	// cycle: a source or destination hazard is outstanding, or the owning
	// unit is still busy.
	Accepted bool
	// Illegal marks an encoding the core rejects; the instruction is
	// consumed, not retried.
	Illegal bool
	// HasVL and VL deliver the vector length result of a configuration
	// instruction, available in the issue cycle.
	HasVL bool
	VL    uint32
	// Misaligned advises that an accepted unit-stride access starts off the
	// memory port's natural alignment. The access still executes; the port
	// splits it across extra words.
	Misaligned bool
}

// pendingCommit is a register write (and its hazard release) waiting for the
// single write port.
type pendingCommit struct {
	write unit.VRegWrite
	clear hazard.RegMask
}

// Core is the vector coprocessor.
type Core struct {
	config latency.Config

	decoder *insts.Decoder
	tracker *hazard.Tracker
	gateway *vreg.Gateway

	alu  *valu.Unit
	mul  *vmul.Unit
	sld  *sld.Unit
	lsu  *lsu.Unit
	elem *velem.Unit

	memory mem.Port

	// Architectural configuration state.
	vcfg   insts.Config
	vill   bool
	vstart uint32
	vxsat  bool

	commits []pendingCommit

	scalar      uint32
	scalarValid bool

	rr    int
	stats Stats
}

// readPort tracks whether the shared read port was used this cycle.
type readPort struct {
	file *vreg.File
	used bool
	idx  uint8
}

func (p *readPort) Read(index uint8) []byte {
	p.used = true
	p.idx = index
	return p.file.Read(index)
}

// NewCore builds a core from the latency configuration and a memory port.
func NewCore(config latency.Config, memory mem.Port) (*Core, error) {
	file, err := vreg.NewFile(config.VLenBits)
	if err != nil {
		return nil, err
	}
	vregBytes := config.VLenBits / 8
	wl := config.VRegWriteLatency
	sb := config.StageBuffer

	c := &Core{
		config:  config,
		decoder: insts.NewDecoder(),
		tracker: hazard.New(),
		gateway: vreg.NewGateway(file),
		alu:     valu.New(vregBytes, wl, sb),
		mul:     vmul.New(vregBytes, wl, sb),
		sld:     sld.New(vregBytes, wl, sb),
		lsu:     lsu.New(vregBytes, wl, sb),
		elem:    velem.New(vregBytes, wl, sb),
		memory:  memory,
	}
	c.vcfg = insts.Config{SEW: insts.SEW8, LMUL: insts.LMUL1}
	c.vill = true // vtype is invalid out of reset until the first vset
	return c, nil
}

// Gateway returns the register file gateway, the scalar side's access path
// to vector register state.
func (c *Core) Gateway() *vreg.Gateway { return c.gateway }

// Stats returns the accumulated counters.
func (c *Core) Stats() Stats { return c.stats }

// Config returns the live vector configuration.
func (c *Core) Config() insts.Config { return c.vcfg }

// Busy reports whether any operation is still in flight.
func (c *Core) Busy() bool {
	return c.alu.Busy() || c.mul.Busy() || c.sld.Busy() ||
		c.lsu.Busy() || c.elem.Busy() ||
		c.tracker.ReadPending() != 0 || c.tracker.WritePending() != 0 ||
		len(c.commits) > 0
}

// ScalarResult returns the scalar produced by the last element operation,
// once.
func (c *Core) ScalarResult() (uint32, bool) {
	if !c.scalarValid {
		return 0, false
	}
	c.scalarValid = false
	return c.scalar, true
}

// Issue offers one instruction word with its scalar operand values. A
// refused instruction must be offered again after the next Tick.
func (c *Core) Issue(word, rs1Val, rs2Val uint32) IssueResult {
	desc, ok := c.decoder.Decode(word, rs1Val, rs2Val, c.vcfg)
	if !ok {
		c.stats.Illegal++
		return IssueResult{Illegal: true}
	}

	if desc.Unit == insts.UnitCFG {
		vl := c.applyConfig(desc, rs2Val)
		c.stats.Instructions++
		return IssueResult{Accepted: true, HasVL: true, VL: vl}
	}

	// Everything except configuration depends on a valid vtype.
	if c.vill {
		c.stats.Illegal++
		return IssueResult{Illegal: true}
	}

	u := c.unitFor(desc.Unit)
	if !c.tracker.CanIssue(desc, u.busyNow()) {
		c.stats.Stalls++
		return IssueResult{}
	}

	c.tracker.Admit(desc)
	u.admit(desc)
	c.vstart = 0
	c.stats.Instructions++

	res := IssueResult{Accepted: true}
	if c.misaligned(desc) {
		res.Misaligned = true
		c.stats.Misaligned++
	}
	return res
}

// misaligned reports whether a unit-stride access starts off the memory
// port's word alignment.
func (c *Core) misaligned(desc *insts.Descriptor) bool {
	if desc.Unit != insts.UnitLSU || desc.Mode.Lsu.Stride != insts.StrideUnit {
		return false
	}
	wb := uint32(c.config.MemWidthBits / 8)
	return desc.Rs1.Value%wb != 0
}

// execUnit is the admission view of one execution unit.
type execUnit struct {
	busyNow func() bool
	admit   func(*insts.Descriptor)
}

func (c *Core) unitFor(u insts.Unit) execUnit {
	switch u {
	case insts.UnitALU:
		return execUnit{c.alu.Busy, c.alu.Admit}
	case insts.UnitMUL:
		return execUnit{c.mul.Busy, c.mul.Admit}
	case insts.UnitSLD:
		return execUnit{c.sld.Busy, c.sld.Admit}
	case insts.UnitLSU:
		return execUnit{c.lsu.Busy, c.lsu.Admit}
	default:
		return execUnit{c.elem.Busy, c.elem.Admit}
	}
}

// applyConfig executes a vset instruction and returns the new vector length.
func (c *Core) applyConfig(desc *insts.Descriptor, rs2Val uint32) uint32 {
	cm := desc.Mode.Cfg
	sew, lmul := cm.SEW, cm.LMUL
	if cm.VTypeFromReg {
		sew, lmul = insts.DecodeVType(rs2Val)
	}

	if sew == insts.SEWInvalid {
		c.vill = true
		c.vcfg = insts.Config{SEW: insts.SEWInvalid, VXRM: c.vcfg.VXRM}
		return 0
	}

	vlmax := insts.MaxVL(c.config.VLenBits, sew, lmul)
	var vl uint32
	switch {
	case cm.SetMaxVL:
		vl = vlmax
	case cm.KeepVL:
		// The keep form changes only the type; the previous length stands
		// even when the new configuration would cap it lower.
		vl = c.vcfg.VL
	default:
		vl = desc.Rs1.Value
		if vl > vlmax {
			vl = vlmax
		}
	}

	c.vill = false
	c.vcfg = insts.Config{SEW: sew, LMUL: lmul, VXRM: c.vcfg.VXRM, VL: vl}
	return vl
}

// Tick advances the whole core one cycle.
func (c *Core) Tick() {
	c.stats.Cycles++

	port := &readPort{file: c.gateway.File()}
	grant := c.grantRead()
	granted := func(i int) unit.ReadPort {
		if i == grant {
			return port
		}
		return nil
	}

	results := [5]unit.Result{
		c.alu.Tick(granted(0)),
		c.mul.Tick(granted(1)),
		c.sld.Tick(granted(2)),
		c.lsu.Tick(granted(3), c.memory),
		c.elem.Tick(granted(4)),
	}

	for _, r := range results {
		c.tracker.Clear(r.ClearRead, 0)
		if r.Write.Enable || r.ClearWrite != 0 {
			c.commits = append(c.commits, pendingCommit{write: r.Write, clear: r.ClearWrite})
		}
		if r.ScalarValid {
			c.scalar = r.ScalarResult
			c.scalarValid = true
		}
	}
	if len(c.commits) > 1 {
		c.stats.WriteConflicts += uint64(len(c.commits) - 1)
	}

	aluSat := c.alu.SatFlag()
	mulSat := c.mul.SatFlag()
	if aluSat || mulSat {
		c.vxsat = true
	}
	if c.lsu.ErrFlag() {
		c.stats.BusErrors++
	}

	// Commit at most one register write through the gateway; hazard release
	// rides with the committing entry. Disabled placeholders release
	// immediately without occupying the port.
	var vecWrite vreg.WriteReq
	for len(c.commits) > 0 {
		head := c.commits[0]
		if head.write.Enable {
			vecWrite = vreg.WriteReq{
				Enable: true,
				Index:  head.write.Index,
				Mask:   head.write.Mask,
				Data:   head.write.Data,
			}
			c.tracker.Clear(0, head.clear)
			c.commits = c.commits[1:]
			break
		}
		c.tracker.Clear(0, head.clear)
		c.commits = c.commits[1:]
	}

	c.gateway.Tick(vecWrite, vreg.ReadReq{Enable: port.used, Index: port.idx})
	c.memory.Tick()
}

// grantRead picks the unit that gets the shared read port this cycle,
// round-robin among the units that want it.
func (c *Core) grantRead() int {
	wants := [5]bool{
		c.alu.NeedsRead(), c.mul.NeedsRead(), c.sld.NeedsRead(),
		c.lsu.NeedsRead(), c.elem.NeedsRead(),
	}
	for i := 0; i < 5; i++ {
		idx := (c.rr + i) % 5
		if wants[idx] {
			c.rr = (idx + 1) % 5
			return idx
		}
	}
	return -1
}

// ReadCSR reads a vector CSR. The second result is false for an unknown
// address.
func (c *Core) ReadCSR(addr uint32) (uint32, bool) {
	switch addr {
	case CSRVStart:
		return c.vstart, true
	case CSRVxsat:
		if c.vxsat {
			return 1, true
		}
		return 0, true
	case CSRVxrm:
		return uint32(c.vcfg.VXRM), true
	case CSRVcsr:
		v := uint32(c.vcfg.VXRM) << 1
		if c.vxsat {
			v |= 1
		}
		return v, true
	case CSRVl:
		return c.vcfg.VL, true
	case CSRVtype:
		return c.vtypeWord(), true
	case CSRVlenb:
		return uint32(c.config.VLenBits / 8), true
	default:
		return 0, false
	}
}

// WriteCSR writes a vector CSR. vl, vtype and vlenb are read-only; writing
// them fails.
func (c *Core) WriteCSR(addr, value uint32) bool {
	switch addr {
	case CSRVStart:
		c.vstart = value
	case CSRVxsat:
		c.vxsat = value&1 != 0
	case CSRVxrm:
		c.vcfg.VXRM = insts.VXRM(value & 3)
	case CSRVcsr:
		c.vxsat = value&1 != 0
		c.vcfg.VXRM = insts.VXRM((value >> 1) & 3)
	default:
		return false
	}
	return true
}

// vtypeWord encodes the live configuration as the vtype CSR value.
func (c *Core) vtypeWord() uint32 {
	if c.vill {
		return 1 << 31
	}
	var sewBits uint32
	switch c.vcfg.SEW {
	case insts.SEW8:
		sewBits = 0
	case insts.SEW16:
		sewBits = 1
	case insts.SEW32:
		sewBits = 2
	}
	var lmulBits uint32
	switch c.vcfg.LMUL {
	case insts.LMUL1:
		lmulBits = 0
	case insts.LMUL2:
		lmulBits = 1
	case insts.LMUL4:
		lmulBits = 2
	case insts.LMUL8:
		lmulBits = 3
	case insts.LMULF8:
		lmulBits = 5
	case insts.LMULF4:
		lmulBits = 6
	case insts.LMULF2:
		lmulBits = 7
	}
	return sewBits<<3 | lmulBits
}

// Reset returns the core to its power-on state. Memory contents are left to
// the memory model's own Reset.
func (c *Core) Reset() {
	c.tracker.Reset()
	c.gateway.Reset()
	c.gateway.File().Reset()
	c.alu.Reset()
	c.mul.Reset()
	c.sld.Reset()
	c.lsu.Reset()
	c.elem.Reset()
	c.vcfg = insts.Config{SEW: insts.SEW8, LMUL: insts.LMUL1}
	c.vill = true
	c.vstart = 0
	c.vxsat = false
	c.commits = nil
	c.scalarValid = false
	c.rr = 0
	c.stats = Stats{}
}
