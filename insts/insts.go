// Package insts provides RISC-V vector instruction definitions and decoding.
package insts

// Unit identifies the execution unit that owns a decoded operation.
type Unit uint8

// Execution units.
const (
	UnitALU Unit = iota
	UnitMUL
	UnitSLD
	UnitLSU
	UnitELEM
	UnitCFG
)

// String returns a short name for the unit.
func (u Unit) String() string {
	switch u {
	case UnitALU:
		return "ALU"
	case UnitMUL:
		return "MUL"
	case UnitSLD:
		return "SLD"
	case UnitLSU:
		return "LSU"
	case UnitELEM:
		return "ELEM"
	case UnitCFG:
		return "CFG"
	default:
		return "???"
	}
}

// WidthClass describes the destination/source element-width ratio of an
// operation and how the register-group multiplier scales across operands.
type WidthClass uint8

// Width classes.
const (
	// WidthSingle operations use the same element width for all operands.
	WidthSingle WidthClass = iota
	// WidthWide operations read narrow sources and write a wide destination.
	WidthWide
	// WidthWideVS2 operations read a wide vs2, a narrow vs1, and write wide.
	WidthWideVS2
	// WidthNarrow operations read a wide vs2 and write a narrow destination.
	WidthNarrow
)

// SEW is a selected element width.
type SEW uint8

// Element widths supported by the core.
const (
	SEW8 SEW = iota
	SEW16
	SEW32
	SEWInvalid
)

// Bits returns the element width in bits.
func (s SEW) Bits() int {
	switch s {
	case SEW8:
		return 8
	case SEW16:
		return 16
	case SEW32:
		return 32
	default:
		return 0
	}
}

// Bytes returns the element width in bytes.
func (s SEW) Bytes() int { return s.Bits() / 8 }

// LMUL is the register-group length multiplier requested by software.
type LMUL uint8

// LMUL settings, integer multiples first, then the fractional ones.
const (
	LMUL1 LMUL = iota
	LMUL2
	LMUL4
	LMUL8
	LMULF8
	LMULF4
	LMULF2
)

// EMUL is the effective register-group multiplier of a concrete operation.
type EMUL uint8

// Effective group multipliers.
const (
	EMUL1 EMUL = iota
	EMUL2
	EMUL4
	EMUL8
)

// Count returns the number of physical registers in the group.
func (e EMUL) Count() int { return 1 << e }

// Double returns the doubled multiplier and whether doubling is possible.
func (e EMUL) Double() (EMUL, bool) {
	if e == EMUL8 {
		return e, false
	}
	return e + 1, true
}

// VXRM is the fixed-point rounding mode.
type VXRM uint8

// Rounding modes.
const (
	VXRMRNU VXRM = iota // round-to-nearest-up
	VXRMRNE             // round-to-nearest-even
	VXRMRDN             // round-down (truncate)
	VXRMROD             // round-to-odd
)

// Config is the live configuration state visible to the decoder: element
// width, group multiplier, rounding mode, and the current vector length.
type Config struct {
	SEW  SEW
	LMUL LMUL
	VXRM VXRM
	VL   uint32
}

// Operand describes one source operand: either a vector register group base
// index or a 32-bit scalar/immediate value.
type Operand struct {
	IsVector bool
	Index    uint8  // base register index when IsVector
	Value    uint32 // scalar or sign/zero-extended immediate otherwise
}

// Vector returns a vector operand with the given base index.
func Vector(index uint8) Operand { return Operand{IsVector: true, Index: index} }

// Scalar returns a scalar/immediate operand.
func Scalar(value uint32) Operand { return Operand{Value: value} }

// RegOperand describes the destination operand.
type RegOperand struct {
	IsVector bool
	Index    uint8
}

// AluOp selects the ALU transform.
type AluOp uint8

// ALU operations.
const (
	AluAdd AluOp = iota
	AluSub
	AluRSub
	AluAnd
	AluOr
	AluXor
	AluSll
	AluSrl
	AluSra
	AluMinU
	AluMin
	AluMaxU
	AluMax
	AluMSeq
	AluMSne
	AluMSltU
	AluMSlt
	AluMSleU
	AluMSle
	AluMSgtU
	AluMSgt
	AluAdc
	AluMAdc
	AluSbc
	AluMSbc
	AluMerge
	AluMv
	AluSAddU
	AluSAdd
	AluSSubU
	AluSSub
	AluSSrl
	AluSSra
	AluAAddU
	AluAAdd
	AluASubU
	AluASub
	AluNSrl
	AluNSra
	AluNClipU
	AluNClip
	AluZExt
	AluSExt
	AluMAnd
	AluMNand
	AluMAndNot
	AluMXor
	AluMOr
	AluMNor
	AluMOrNot
	AluMXnor
)

// AluMode is the ALU-specific mode bundle.
type AluMode struct {
	Op AluOp
	// MaskResult is set when the result is a single mask bit per element
	// (compares, carry-out ops, mask logic).
	MaskResult bool
	// Signed applies to widening adds/subs, min/max and shifts.
	Signed bool
	// ExtFactor is 2 or 4 for vzext/vsext, 0 otherwise.
	ExtFactor uint8
}

// MulOp selects the multiplier transform.
type MulOp uint8

// Multiplier operations.
const (
	MulMul MulOp = iota
	MulMulH
	MulMulHU
	MulMulHSU
	MulSMul
	MulMAcc
	MulNMSac
	MulMAdd
	MulNMSub
	MulWMul
	MulWMulU
	MulWMulSU
	MulWMAcc
	MulWMAccU
	MulWMAccSU
	MulWMAccUS
)

// MulMode is the multiply-unit mode bundle.
type MulMode struct {
	Op MulOp
	// Acc is set for multiply-accumulate forms (vd is also a source).
	Acc bool
}

// SlideDir is the slide direction.
type SlideDir uint8

// Slide directions.
const (
	SlideUp SlideDir = iota
	SlideDown
)

// SldMode is the slide-unit mode bundle.
type SldMode struct {
	Dir SlideDir
	// Slide1 selects the slide-by-one-element variants, which substitute a
	// scalar at the vacated boundary element.
	Slide1 bool
}

// StrideKind selects the load/store addressing mode.
type StrideKind uint8

// Addressing modes.
const (
	StrideUnit StrideKind = iota
	StrideStrided
	StrideIndexed
)

// LsuMode is the load-store-unit mode bundle.
type LsuMode struct {
	Store  bool
	Stride StrideKind
	// EEW is the effective element width of the memory access. Loads place
	// memory elements in the register at this width; no width conversion
	// happens on the way in.
	EEW SEW
	// OffsetEMUL is the group multiplier of the vs2 offset vector for
	// indexed accesses.
	OffsetEMUL EMUL
}

// ElemOp selects the element/permute/reduction transform.
type ElemOp uint8

// Element-unit operations.
const (
	ElemMvXS ElemOp = iota // vmv.x.s: scalar result
	ElemMvSX               // vmv.s.x: write element 0
	ElemPop                // vcpop.m: scalar result
	ElemFirst              // vfirst.m: scalar result
	ElemMsbf
	ElemMsif
	ElemMsof
	ElemIota
	ElemID
	ElemGather
	ElemCompress
	ElemRedSum
	ElemRedAnd
	ElemRedOr
	ElemRedXor
	ElemRedMinU
	ElemRedMin
	ElemRedMaxU
	ElemRedMax
)

// ElemMode is the element-unit mode bundle.
type ElemMode struct {
	Op ElemOp
	// ScalarResult is set when the operation produces a scalar value for
	// the host instead of a vector register write.
	ScalarResult bool
	// Reduction marks accumulating operations over all active elements.
	Reduction bool
}

// CfgMode is decoded from configuration (vset*) instructions.
type CfgMode struct {
	SEW  SEW
	LMUL LMUL
	// SetMaxVL requests the maximum vector length for the new SEW/LMUL.
	SetMaxVL bool
	// KeepVL retains the current vector length unchanged.
	KeepVL bool
	// VTypeFromReg is set for vsetvl, whose vtype comes from rs2 at issue.
	VTypeFromReg bool
}

// Mode carries the unit-specific mode bits. Only the bundle matching
// Descriptor.Unit is meaningful.
type Mode struct {
	ALU  AluMode
	Mul  MulMode
	Sld  SldMode
	Lsu  LsuMode
	Elem ElemMode
	Cfg  CfgMode
}

// Descriptor is the normalized operation descriptor produced by the decoder.
// It is immutable for the lifetime of the operation.
type Descriptor struct {
	Unit       Unit
	Mode       Mode
	WidthClass WidthClass

	Rs1 Operand
	Rs2 Operand
	Rd  RegOperand

	// Masked is set when the operation consumes the v0 mask register.
	Masked bool

	// EMUL is the effective group multiplier derived from LMUL and the
	// width class.
	EMUL EMUL

	// VL and VLZero capture the active vector length at issue.
	VL     uint32
	VLZero bool

	SEW  SEW
	VXRM VXRM
}

// DestEMUL returns the effective multiplier of the destination group.
func (d *Descriptor) DestEMUL() EMUL {
	switch d.WidthClass {
	case WidthWide, WidthWideVS2:
		e, _ := d.EMUL.Double()
		return e
	default:
		return d.EMUL
	}
}

// VS2EMUL returns the effective multiplier of the vs2 source group.
func (d *Descriptor) VS2EMUL() EMUL {
	switch d.WidthClass {
	case WidthWideVS2, WidthNarrow:
		e, _ := d.EMUL.Double()
		return e
	default:
		return d.EMUL
	}
}

// maskLogicOp reports whether the ALU operation combines two mask registers.
func (d *Descriptor) maskLogicOp() bool {
	return d.Unit == UnitALU && d.Mode.ALU.Op >= AluMAnd
}

// DestRegCount returns the number of physical registers the destination
// group spans, or 0 when the operation has no vector destination.
func (d *Descriptor) DestRegCount() int {
	if d.Unit == UnitCFG || !d.Rd.IsVector {
		return 0
	}
	if d.Unit == UnitLSU {
		return d.EMUL.Count()
	}
	if d.Unit == UnitALU && d.Mode.ALU.MaskResult {
		return 1
	}
	if d.Unit == UnitELEM {
		switch d.Mode.Elem.Op {
		case ElemMsbf, ElemMsif, ElemMsof, ElemMvSX:
			return 1
		}
		if d.Mode.Elem.Reduction {
			return 1
		}
	}
	return d.DestEMUL().Count()
}

// VS2RegCount returns the number of physical registers the vs2 operand
// spans, or 0 when vs2 is not a vector.
func (d *Descriptor) VS2RegCount() int {
	if !d.Rs2.IsVector {
		return 0
	}
	if d.maskLogicOp() {
		return 1
	}
	if d.Unit == UnitELEM {
		switch d.Mode.Elem.Op {
		case ElemPop, ElemFirst, ElemMsbf, ElemMsif, ElemMsof, ElemIota, ElemMvXS:
			return 1
		}
	}
	if d.Unit == UnitLSU {
		return d.Mode.Lsu.OffsetEMUL.Count()
	}
	if f := int(d.Mode.ALU.ExtFactor); d.Unit == UnitALU && f > 0 {
		if n := d.EMUL.Count() / f; n > 1 {
			return n
		}
		return 1
	}
	return d.VS2EMUL().Count()
}

// VS1RegCount returns the number of physical registers the vs1 operand
// spans, or 0 when vs1 is not a vector.
func (d *Descriptor) VS1RegCount() int {
	if !d.Rs1.IsVector {
		return 0
	}
	if d.maskLogicOp() || d.Mode.Elem.Reduction ||
		(d.Unit == UnitELEM && d.Mode.Elem.Op == ElemCompress) {
		return 1
	}
	return d.EMUL.Count()
}

// RdIsSource reports whether the destination register group is also read by
// the operation: store data for the LSU and the accumulator of
// multiply-accumulate forms.
func (d *Descriptor) RdIsSource() bool {
	if d.Unit == UnitLSU && d.Mode.Lsu.Store {
		return true
	}
	return d.Unit == UnitMUL && d.Mode.Mul.Acc
}

// RdIsWritten reports whether the operation writes its destination group.
// Stores read their data group without ever writing it.
func (d *Descriptor) RdIsWritten() bool {
	if d.Unit == UnitCFG || !d.Rd.IsVector {
		return false
	}
	return !(d.Unit == UnitLSU && d.Mode.Lsu.Store)
}
