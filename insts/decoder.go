package insts

// Top-level opcodes recognized by the vector unit.
const (
	opcodeLoadFP  = 0x07 // vector loads
	opcodeStoreFP = 0x27 // vector stores
	opcodeVector  = 0x57 // vector arithmetic and configuration
)

// Operand-select categories (funct3 of the vector-arithmetic opcode).
const (
	catIVV = 0 // vector-vector
	catFVV = 1 // floating-point, unsupported
	catMVV = 2 // mask/multiply vector-vector
	catIVI = 3 // vector-immediate
	catIVX = 4 // vector-scalar
	catFVF = 5 // floating-point, unsupported
	catMVX = 6 // mask/multiply vector-scalar
	catCFG = 7 // configuration
)

// Decoder decodes RISC-V vector machine code into operation descriptors.
// It is a pure function of the instruction word, the two scalar operand
// values and the live configuration state; it holds no state of its own.
type Decoder struct{}

// NewDecoder creates a new vector instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word against the current configuration.
// rs1Val and rs2Val are the scalar register values named by the instruction.
// The second return value is false when the encoding is illegal; no
// descriptor is produced in that case and the operation must not be admitted.
func (d *Decoder) Decode(word, rs1Val, rs2Val uint32, cfg Config) (*Descriptor, bool) {
	desc := &Descriptor{
		SEW:    cfg.SEW,
		VXRM:   cfg.VXRM,
		VL:     cfg.VL,
		VLZero: cfg.VL == 0,
	}

	switch word & 0x7F {
	case opcodeVector:
		if !d.decodeVector(word, rs1Val, rs2Val, cfg, desc) {
			return nil, false
		}
	case opcodeLoadFP:
		if !d.decodeMem(word, rs1Val, rs2Val, cfg, desc, false) {
			return nil, false
		}
	case opcodeStoreFP:
		if !d.decodeMem(word, rs1Val, rs2Val, cfg, desc, true) {
			return nil, false
		}
	default:
		return nil, false
	}

	if desc.Unit != UnitCFG && !d.checkAlignment(desc) {
		return nil, false
	}
	return desc, true
}

// decodeVector handles the vector-arithmetic opcode, dispatching on the
// operand-select field and then on funct6.
func (d *Decoder) decodeVector(word, rs1Val, rs2Val uint32, cfg Config, desc *Descriptor) bool {
	funct3 := uint8((word >> 12) & 0x7)
	if funct3 == catCFG {
		return d.decodeConfig(word, rs1Val, desc)
	}
	if funct3 == catFVV || funct3 == catFVF {
		return false
	}

	emul, ok := emulFromLMUL(cfg.LMUL)
	if !ok {
		return false
	}

	vd := uint8((word >> 7) & 0x1F)
	vs1 := uint8((word >> 15) & 0x1F)
	vs2 := uint8((word >> 20) & 0x1F)
	vm := (word>>25)&0x1 == 1
	funct6 := uint8(word >> 26)

	desc.EMUL = emul
	desc.Masked = !vm
	desc.Rd = RegOperand{IsVector: true, Index: vd}
	desc.Rs2 = Vector(vs2)

	switch funct3 {
	case catIVV, catIVX, catIVI:
		if !d.decodeOPI(funct6, funct3, vs1, rs1Val, vm, cfg, desc) {
			return false
		}
	case catMVV, catMVX:
		if !d.decodeOPM(funct6, funct3, vs1, vs2, rs1Val, vm, cfg, desc) {
			return false
		}
	}

	// Widening and narrowing double an operand width; the wide width must
	// still be representable and the group must not exceed eight registers.
	if desc.WidthClass != WidthSingle {
		if desc.EMUL == EMUL8 {
			return false
		}
		if cfg.SEW == SEW32 {
			return false
		}
	}
	return true
}

// decodeOPI handles the OPIVV/OPIVX/OPIVI operand categories.
func (d *Decoder) decodeOPI(funct6 uint8, funct3, vs1 uint8, rs1Val uint32, vm bool, cfg Config, desc *Descriptor) bool {
	// Operand source for rs1 by category. Most immediates are
	// sign-extended; shift/slide/gather immediates are zero-extended.
	setRs1 := func(signedImm bool) {
		switch funct3 {
		case catIVV:
			desc.Rs1 = Vector(vs1)
		case catIVX:
			desc.Rs1 = Scalar(rs1Val)
		case catIVI:
			if signedImm {
				desc.Rs1 = Scalar(signExtend5(vs1))
			} else {
				desc.Rs1 = Scalar(uint32(vs1))
			}
		}
	}
	// Category legality: bit per {VV, VX, VI}.
	allowed := func(vv, vx, vi bool) bool {
		switch funct3 {
		case catIVV:
			return vv
		case catIVX:
			return vx
		default:
			return vi
		}
	}
	alu := func(op AluOp) {
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = op
	}

	switch funct6 {
	case 0b000000: // vadd
		setRs1(true)
		alu(AluAdd)
	case 0b000010: // vsub
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluSub)
	case 0b000011: // vrsub
		if !allowed(false, true, true) {
			return false
		}
		setRs1(true)
		alu(AluRSub)
	case 0b000100: // vminu
		if !allowed(true, true, false) {
			return false
		}
		setRs1(false)
		alu(AluMinU)
	case 0b000101: // vmin
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluMin)
		desc.Mode.ALU.Signed = true
	case 0b000110: // vmaxu
		if !allowed(true, true, false) {
			return false
		}
		setRs1(false)
		alu(AluMaxU)
	case 0b000111: // vmax
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluMax)
		desc.Mode.ALU.Signed = true
	case 0b001001: // vand
		setRs1(true)
		alu(AluAnd)
	case 0b001010: // vor
		setRs1(true)
		alu(AluOr)
	case 0b001011: // vxor
		setRs1(true)
		alu(AluXor)
	case 0b001100: // vrgather
		setRs1(false)
		desc.Unit = UnitELEM
		desc.Mode.Elem.Op = ElemGather
	case 0b001110: // vslideup
		if !allowed(false, true, true) {
			return false
		}
		setRs1(false)
		desc.Unit = UnitSLD
		desc.Mode.Sld = SldMode{Dir: SlideUp}
	case 0b001111: // vslidedown
		if !allowed(false, true, true) {
			return false
		}
		setRs1(false)
		desc.Unit = UnitSLD
		desc.Mode.Sld = SldMode{Dir: SlideDown}
	case 0b010000: // vadc
		if vm { // carry input is mandatory
			return false
		}
		setRs1(true)
		alu(AluAdc)
	case 0b010001: // vmadc
		setRs1(true)
		alu(AluMAdc)
		desc.Mode.ALU.MaskResult = true
	case 0b010010: // vsbc
		if vm || !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluSbc)
	case 0b010011: // vmsbc
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluMSbc)
		desc.Mode.ALU.MaskResult = true
	case 0b010111: // vmerge / vmv
		setRs1(true)
		if vm {
			if desc.Rs2.Index != 0 {
				return false
			}
			alu(AluMv)
			desc.Masked = false
			desc.Rs2 = Scalar(0) // vs2 is ignored by the move
		} else {
			alu(AluMerge)
		}
	case 0b011000: // vmseq
		setRs1(true)
		alu(AluMSeq)
		desc.Mode.ALU.MaskResult = true
	case 0b011001: // vmsne
		setRs1(true)
		alu(AluMSne)
		desc.Mode.ALU.MaskResult = true
	case 0b011010: // vmsltu
		if !allowed(true, true, false) {
			return false
		}
		setRs1(false)
		alu(AluMSltU)
		desc.Mode.ALU.MaskResult = true
	case 0b011011: // vmslt
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluMSlt)
		desc.Mode.ALU.MaskResult = true
	case 0b011100: // vmsleu
		setRs1(false)
		alu(AluMSleU)
		desc.Mode.ALU.MaskResult = true
	case 0b011101: // vmsle
		setRs1(true)
		alu(AluMSle)
		desc.Mode.ALU.MaskResult = true
	case 0b011110: // vmsgtu
		if !allowed(false, true, true) {
			return false
		}
		setRs1(false)
		alu(AluMSgtU)
		desc.Mode.ALU.MaskResult = true
	case 0b011111: // vmsgt
		if !allowed(false, true, true) {
			return false
		}
		setRs1(true)
		alu(AluMSgt)
		desc.Mode.ALU.MaskResult = true
	case 0b100000: // vsaddu
		setRs1(false)
		alu(AluSAddU)
	case 0b100001: // vsadd
		setRs1(true)
		alu(AluSAdd)
	case 0b100010: // vssubu
		if !allowed(true, true, false) {
			return false
		}
		setRs1(false)
		alu(AluSSubU)
	case 0b100011: // vssub
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		alu(AluSSub)
	case 0b100101: // vsll
		setRs1(false)
		alu(AluSll)
	case 0b100111: // vsmul (VV/VX only)
		if !allowed(true, true, false) {
			return false
		}
		setRs1(true)
		desc.Unit = UnitMUL
		desc.Mode.Mul.Op = MulSMul
	case 0b101000: // vsrl
		setRs1(false)
		alu(AluSrl)
	case 0b101001: // vsra
		setRs1(false)
		alu(AluSra)
		desc.Mode.ALU.Signed = true
	case 0b101010: // vssrl
		setRs1(false)
		alu(AluSSrl)
	case 0b101011: // vssra
		setRs1(false)
		alu(AluSSra)
		desc.Mode.ALU.Signed = true
	case 0b101100: // vnsrl
		setRs1(false)
		alu(AluNSrl)
		desc.WidthClass = WidthNarrow
	case 0b101101: // vnsra
		setRs1(false)
		alu(AluNSra)
		desc.Mode.ALU.Signed = true
		desc.WidthClass = WidthNarrow
	case 0b101110: // vnclipu
		setRs1(false)
		alu(AluNClipU)
		desc.WidthClass = WidthNarrow
	case 0b101111: // vnclip
		setRs1(false)
		alu(AluNClip)
		desc.Mode.ALU.Signed = true
		desc.WidthClass = WidthNarrow
	default:
		return false
	}
	return true
}

// decodeOPM handles the OPMVV/OPMVX operand categories.
func (d *Decoder) decodeOPM(funct6 uint8, funct3, vs1, vs2 uint8, rs1Val uint32, vm bool, cfg Config, desc *Descriptor) bool {
	isVV := funct3 == catMVV
	setRs1 := func() {
		if isVV {
			desc.Rs1 = Vector(vs1)
		} else {
			desc.Rs1 = Scalar(rs1Val)
		}
	}
	mul := func(op MulOp, acc bool) {
		setRs1()
		desc.Unit = UnitMUL
		desc.Mode.Mul = MulMode{Op: op, Acc: acc}
	}
	red := func(op ElemOp) bool {
		if !isVV {
			return false
		}
		setRs1()
		desc.Unit = UnitELEM
		desc.Mode.Elem = ElemMode{Op: op, Reduction: true}
		return true
	}
	maskLogic := func(op AluOp) bool {
		if !isVV || !vm {
			return false
		}
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: op, MaskResult: true}
		desc.Masked = false
		return true
	}

	switch funct6 {
	case 0b000000:
		return red(ElemRedSum)
	case 0b000001:
		return red(ElemRedAnd)
	case 0b000010:
		return red(ElemRedOr)
	case 0b000011:
		return red(ElemRedXor)
	case 0b000100:
		return red(ElemRedMinU)
	case 0b000101:
		return red(ElemRedMin)
	case 0b000110:
		return red(ElemRedMaxU)
	case 0b000111:
		return red(ElemRedMax)
	case 0b001000: // vaaddu
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = AluAAddU
	case 0b001001: // vaadd
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: AluAAdd, Signed: true}
	case 0b001010: // vasubu
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = AluASubU
	case 0b001011: // vasub
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: AluASub, Signed: true}
	case 0b001110: // vslide1up
		if isVV {
			return false
		}
		setRs1()
		desc.Unit = UnitSLD
		desc.Mode.Sld = SldMode{Dir: SlideUp, Slide1: true}
	case 0b001111: // vslide1down
		if isVV {
			return false
		}
		setRs1()
		desc.Unit = UnitSLD
		desc.Mode.Sld = SldMode{Dir: SlideDown, Slide1: true}
	case 0b010000: // VWXUNARY0 / vmv.s.x
		desc.Unit = UnitELEM
		if isVV {
			switch vs1 {
			case 0b00000: // vmv.x.s reads element 0 even at vl=0
				desc.Mode.Elem = ElemMode{Op: ElemMvXS, ScalarResult: true}
				desc.VLZero = false
			case 0b10000: // vcpop.m
				desc.Mode.Elem = ElemMode{Op: ElemPop, ScalarResult: true}
			case 0b10001: // vfirst.m
				desc.Mode.Elem = ElemMode{Op: ElemFirst, ScalarResult: true}
			default:
				return false
			}
			desc.Rd = RegOperand{IsVector: false, Index: desc.Rd.Index}
		} else { // vmv.s.x
			if !vm {
				return false
			}
			desc.Rs1 = Scalar(rs1Val)
			desc.Mode.Elem = ElemMode{Op: ElemMvSX}
		}
		desc.EMUL = EMUL1
	case 0b010010: // VXUNARY0: vzext/vsext
		if !isVV {
			return false
		}
		desc.Unit = UnitALU
		switch vs1 {
		case 0b00100: // vzext.vf4
			desc.Mode.ALU = AluMode{Op: AluZExt, ExtFactor: 4}
		case 0b00101: // vsext.vf4
			desc.Mode.ALU = AluMode{Op: AluSExt, ExtFactor: 4, Signed: true}
		case 0b00110: // vzext.vf2
			desc.Mode.ALU = AluMode{Op: AluZExt, ExtFactor: 2}
		case 0b00111: // vsext.vf2
			desc.Mode.ALU = AluMode{Op: AluSExt, ExtFactor: 2, Signed: true}
		default:
			return false
		}
		if factor := desc.Mode.ALU.ExtFactor; cfg.SEW.Bits() < 8*int(factor) {
			return false
		}
	case 0b010100: // VMUNARY0
		if !isVV {
			return false
		}
		desc.Unit = UnitELEM
		switch vs1 {
		case 0b00001:
			desc.Mode.Elem.Op = ElemMsbf
		case 0b00010:
			desc.Mode.Elem.Op = ElemMsof
		case 0b00011:
			desc.Mode.Elem.Op = ElemMsif
		case 0b10000:
			desc.Mode.Elem.Op = ElemIota
		case 0b10001:
			desc.Mode.Elem.Op = ElemID
		default:
			return false
		}
	case 0b010111: // vcompress
		if !isVV || !vm {
			return false
		}
		setRs1()
		desc.Unit = UnitELEM
		desc.Mode.Elem.Op = ElemCompress
	case 0b011000:
		return maskLogic(AluMAndNot)
	case 0b011001:
		return maskLogic(AluMAnd)
	case 0b011010:
		return maskLogic(AluMOr)
	case 0b011011:
		return maskLogic(AluMXor)
	case 0b011100:
		return maskLogic(AluMOrNot)
	case 0b011101:
		return maskLogic(AluMNand)
	case 0b011110:
		return maskLogic(AluMNor)
	case 0b011111:
		return maskLogic(AluMXnor)
	case 0b100100:
		mul(MulMulHU, false)
	case 0b100101:
		mul(MulMul, false)
	case 0b100110:
		mul(MulMulHSU, false)
	case 0b100111:
		mul(MulMulH, false)
	case 0b101001: // vmadd
		mul(MulMAdd, true)
	case 0b101011: // vnmsub
		mul(MulNMSub, true)
	case 0b101101: // vmacc
		mul(MulMAcc, true)
	case 0b101111: // vnmsac
		mul(MulNMSac, true)
	case 0b110000: // vwaddu
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = AluAdd
		desc.WidthClass = WidthWide
	case 0b110001: // vwadd
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: AluAdd, Signed: true}
		desc.WidthClass = WidthWide
	case 0b110010: // vwsubu
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = AluSub
		desc.WidthClass = WidthWide
	case 0b110011: // vwsub
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: AluSub, Signed: true}
		desc.WidthClass = WidthWide
	case 0b110100: // vwaddu.wv/.wx
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = AluAdd
		desc.WidthClass = WidthWideVS2
	case 0b110101: // vwadd.wv/.wx
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: AluAdd, Signed: true}
		desc.WidthClass = WidthWideVS2
	case 0b110110: // vwsubu.wv/.wx
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU.Op = AluSub
		desc.WidthClass = WidthWideVS2
	case 0b110111: // vwsub.wv/.wx
		setRs1()
		desc.Unit = UnitALU
		desc.Mode.ALU = AluMode{Op: AluSub, Signed: true}
		desc.WidthClass = WidthWideVS2
	case 0b111000:
		mul(MulWMulU, false)
		desc.WidthClass = WidthWide
	case 0b111010:
		mul(MulWMulSU, false)
		desc.WidthClass = WidthWide
	case 0b111011:
		mul(MulWMul, false)
		desc.WidthClass = WidthWide
	case 0b111100:
		mul(MulWMAccU, true)
		desc.WidthClass = WidthWide
	case 0b111101:
		mul(MulWMAcc, true)
		desc.WidthClass = WidthWide
	case 0b111110: // vwmaccus (VX only)
		if isVV {
			return false
		}
		mul(MulWMAccUS, true)
		desc.WidthClass = WidthWide
	case 0b111111:
		mul(MulWMAccSU, true)
		desc.WidthClass = WidthWide
	default:
		return false
	}
	return true
}

// decodeConfig handles vsetvli, vsetivli and vsetvl.
func (d *Decoder) decodeConfig(word, rs1Val uint32, desc *Descriptor) bool {
	rd := uint8((word >> 7) & 0x1F)
	rs1 := uint8((word >> 15) & 0x1F)

	desc.Unit = UnitCFG
	desc.Rd = RegOperand{IsVector: false, Index: rd}
	desc.EMUL = EMUL1

	switch {
	case word>>31 == 0: // vsetvli
		desc.Rs1 = Scalar(rs1Val)
		d.decodeVType((word>>20)&0x7FF, &desc.Mode.Cfg)
	case word>>30 == 0b11: // vsetivli
		desc.Rs1 = Scalar(uint32(rs1))
		d.decodeVType((word>>20)&0x3FF, &desc.Mode.Cfg)
		desc.Mode.Cfg.SetMaxVL = false
		desc.Mode.Cfg.KeepVL = false
		return true
	case word>>25 == 0b1000000: // vsetvl
		desc.Rs1 = Scalar(rs1Val)
		desc.Mode.Cfg.VTypeFromReg = true
	default:
		return false
	}

	// rs1 = x0 selects a special form: with a non-zero destination the
	// vector length is set to the maximum for the new configuration, and
	// with rd = x0 as well the previous vector length is retained.
	if rs1 == 0 {
		if rd != 0 {
			desc.Mode.Cfg.SetMaxVL = true
		} else {
			desc.Mode.Cfg.KeepVL = true
		}
	}
	return true
}

// DecodeVType decodes a raw vtype value into a CfgMode. An unsupported
// element width or a reserved group multiplier yields SEWInvalid, which the
// configuration stage turns into the vill state rather than an illegal
// instruction.
func DecodeVType(vtype uint32) (SEW, LMUL) {
	var cm CfgMode
	(&Decoder{}).decodeVType(vtype, &cm)
	return cm.SEW, cm.LMUL
}

func (d *Decoder) decodeVType(vtype uint32, cm *CfgMode) {
	switch (vtype >> 3) & 0x7 {
	case 0:
		cm.SEW = SEW8
	case 1:
		cm.SEW = SEW16
	case 2:
		cm.SEW = SEW32
	default:
		cm.SEW = SEWInvalid
	}
	switch vtype & 0x7 {
	case 0:
		cm.LMUL = LMUL1
	case 1:
		cm.LMUL = LMUL2
	case 2:
		cm.LMUL = LMUL4
	case 3:
		cm.LMUL = LMUL8
	case 5:
		cm.LMUL = LMULF8
	case 6:
		cm.LMUL = LMULF4
	case 7:
		cm.LMUL = LMULF2
	default: // reserved
		cm.SEW = SEWInvalid
	}
	// Reserved upper vtype bits force the invalid state as well.
	if vtype>>8 != 0 {
		cm.SEW = SEWInvalid
	}
}

// decodeMem handles vector loads and stores.
func (d *Decoder) decodeMem(word, rs1Val, rs2Val uint32, cfg Config, desc *Descriptor, store bool) bool {
	vd := uint8((word >> 7) & 0x1F)
	width := (word >> 12) & 0x7
	rs2f := uint8((word >> 20) & 0x1F)
	vm := (word>>25)&0x1 == 1
	mop := (word >> 26) & 0x3
	mew := (word>>28)&0x1 == 1
	nf := (word >> 29) & 0x7

	// Segmented and 64-bit-element forms are reserved on this core.
	if nf != 0 || mew {
		return false
	}

	var eew SEW
	switch width {
	case 0b000:
		eew = SEW8
	case 0b101:
		eew = SEW16
	case 0b110:
		eew = SEW32
	default:
		return false
	}

	desc.Unit = UnitLSU
	desc.Masked = !vm
	desc.Rd = RegOperand{IsVector: true, Index: vd}
	desc.Rs1 = Scalar(rs1Val) // base address
	desc.Mode.Lsu = LsuMode{Store: store, EEW: eew}

	lp, ok := lmulPow(cfg.LMUL)
	if !ok {
		return false
	}

	switch mop {
	case 0b00: // unit-stride
		if rs2f != 0 { // whole-register, mask and fault-only-first forms
			return false
		}
		desc.Mode.Lsu.Stride = StrideUnit
		emul, ok := emulForEEW(lp, cfg.SEW, eew)
		if !ok {
			return false
		}
		desc.EMUL = emul
		desc.Rs2 = Scalar(0)
	case 0b10: // strided
		desc.Mode.Lsu.Stride = StrideStrided
		emul, ok := emulForEEW(lp, cfg.SEW, eew)
		if !ok {
			return false
		}
		desc.EMUL = emul
		desc.Rs2 = Scalar(rs2Val)
	case 0b01, 0b11: // indexed (unordered / ordered)
		desc.Mode.Lsu.Stride = StrideIndexed
		// Data uses SEW with the plain LMUL grouping; the offsets in vs2
		// use the encoded EEW and scale their group accordingly.
		emul, ok := emulFromLMUL(cfg.LMUL)
		if !ok {
			return false
		}
		offEmul, okOff := emulForEEW(lp, cfg.SEW, eew)
		if !okOff {
			return false
		}
		desc.EMUL = emul
		desc.Rs2 = Vector(rs2f)
		desc.Mode.Lsu.OffsetEMUL = offEmul
		if int(rs2f)%offEmul.Count() != 0 {
			return false
		}
	}
	return true
}

// checkAlignment verifies that every vector operand's base index is a
// multiple of its group size under the operation's effective multiplier.
func (d *Decoder) checkAlignment(desc *Descriptor) bool {
	aligned := func(idx uint8, e EMUL) bool {
		return int(idx)%e.Count() == 0
	}

	if desc.Rd.IsVector {
		de := desc.DestEMUL()
		if destIsMask(desc) {
			de = EMUL1
		}
		if !aligned(desc.Rd.Index, de) {
			return false
		}
	}
	if desc.Rs2.IsVector && desc.Unit != UnitLSU {
		if !aligned(desc.Rs2.Index, desc.VS2EMUL()) {
			return false
		}
	}
	if desc.Rs1.IsVector {
		e := desc.EMUL
		if desc.Mode.Elem.Reduction || vs1IsMask(desc) {
			e = EMUL1
		}
		if !aligned(desc.Rs1.Index, e) {
			return false
		}
	}
	return true
}

// destIsMask reports whether the destination is a single mask register.
func destIsMask(desc *Descriptor) bool {
	if desc.Unit == UnitALU && desc.Mode.ALU.MaskResult {
		return true
	}
	if desc.Unit == UnitELEM {
		switch desc.Mode.Elem.Op {
		case ElemMsbf, ElemMsif, ElemMsof:
			return true
		}
		if desc.Mode.Elem.Reduction || desc.Mode.Elem.Op == ElemMvSX {
			return true // single register, not a mask, but same footprint
		}
	}
	return false
}

// vs1IsMask reports whether vs1 names a single mask register.
func vs1IsMask(desc *Descriptor) bool {
	return desc.Unit == UnitELEM && desc.Mode.Elem.Op == ElemCompress
}

// emulFromLMUL maps the configured LMUL onto an effective group multiplier.
// Fractional multipliers occupy a single register.
func emulFromLMUL(l LMUL) (EMUL, bool) {
	switch l {
	case LMUL1, LMULF2, LMULF4, LMULF8:
		return EMUL1, true
	case LMUL2:
		return EMUL2, true
	case LMUL4:
		return EMUL4, true
	case LMUL8:
		return EMUL8, true
	default:
		return EMUL1, false
	}
}

// lmulPow returns LMUL as a power of two in -3..3.
func lmulPow(l LMUL) (int, bool) {
	switch l {
	case LMULF8:
		return -3, true
	case LMULF4:
		return -2, true
	case LMULF2:
		return -1, true
	case LMUL1:
		return 0, true
	case LMUL2:
		return 1, true
	case LMUL4:
		return 2, true
	case LMUL8:
		return 3, true
	default:
		return 0, false
	}
}

// emulForEEW scales the configured group multiplier by the EEW/SEW ratio.
// The result must stay within one to eight registers.
func emulForEEW(lp int, sew, eew SEW) (EMUL, bool) {
	if sew.Bits() == 0 || eew.Bits() == 0 {
		return EMUL1, false
	}
	p := lp + int(eew) - int(sew)
	switch {
	case p < -3 || p > 3:
		return EMUL1, false
	case p <= 0:
		return EMUL1, true
	default:
		return EMUL(p), true
	}
}

// signExtend5 sign-extends a 5-bit immediate.
func signExtend5(v uint8) uint32 {
	if v&0x10 != 0 {
		return uint32(v) | 0xFFFFFFE0
	}
	return uint32(v)
}

// MaxVL returns the maximum vector length for a register width of vlenBits
// under the given element width and group multiplier. It returns 0 for the
// invalid configuration.
func MaxVL(vlenBits int, s SEW, l LMUL) uint32 {
	if s == SEWInvalid {
		return 0
	}
	lp, ok := lmulPow(l)
	if !ok {
		return 0
	}
	base := vlenBits / s.Bits()
	if lp >= 0 {
		return uint32(base << lp)
	}
	return uint32(base >> -lp)
}
