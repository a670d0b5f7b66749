package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vproclab/vvsim/insts"
)

var _ = Describe("Decoder", func() {
	var (
		decoder *insts.Decoder
		cfg     insts.Config
	)

	BeforeEach(func() {
		decoder = insts.NewDecoder()
		cfg = insts.Config{SEW: insts.SEW32, LMUL: insts.LMUL1, VL: 4}
	})

	Describe("Integer arithmetic", func() {
		// vadd.vv v1, v2, v3 -> 0x022180D7
		// funct6=000000, vm=1, vs2=2, vs1=3, funct3=OPIVV, vd=1
		It("should decode vadd.vv v1, v2, v3", func() {
			desc, ok := decoder.Decode(0x022180D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitALU))
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluAdd))
			Expect(desc.Rd).To(Equal(insts.RegOperand{IsVector: true, Index: 1}))
			Expect(desc.Rs2).To(Equal(insts.Vector(2)))
			Expect(desc.Rs1).To(Equal(insts.Vector(3)))
			Expect(desc.Masked).To(BeFalse())
			Expect(desc.EMUL).To(Equal(insts.EMUL1))
			Expect(desc.SEW).To(Equal(insts.SEW32))
			Expect(desc.VL).To(Equal(uint32(4)))
		})

		// vadd.vx v1, v2, x5 -> 0x0222C0D7
		It("should decode vadd.vx with the scalar operand value", func() {
			desc, ok := decoder.Decode(0x0222C0D7, 0x55, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Rs1).To(Equal(insts.Scalar(0x55)))
		})

		// vadd.vi v1, v2, -3 -> 0x022EB0D7 (imm5 = 11101)
		It("should sign-extend the vadd immediate", func() {
			desc, ok := decoder.Decode(0x022EB0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Rs1.Value).To(Equal(uint32(0xFFFFFFFD)))
		})

		// vsub has no .vi form -> 0x0A20B0D7
		It("should reject vsub.vi", func() {
			_, ok := decoder.Decode(0x0A20B0D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		// vsll.vi v1, v2, 3 -> 0x9621B0D7
		It("should zero-extend the shift immediate", func() {
			desc, ok := decoder.Decode(0x9621B0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluSll))
			Expect(desc.Rs1.Value).To(Equal(uint32(3)))
		})

		// funct3=1 is a floating-point category -> 0x022190D7
		It("should reject floating-point categories", func() {
			_, ok := decoder.Decode(0x022190D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		It("should flag a zero vector length", func() {
			cfg.VL = 0
			desc, ok := decoder.Decode(0x022180D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.VLZero).To(BeTrue())
		})
	})

	Describe("Compares and carries", func() {
		// vmseq.vi v1, v2, 5 -> 0x6222B0D7
		It("should decode vmseq.vi as a mask-result operation", func() {
			desc, ok := decoder.Decode(0x6222B0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluMSeq))
			Expect(desc.Mode.ALU.MaskResult).To(BeTrue())
		})

		// vadc.vvm v1, v2, v3, v0 -> 0x402180D7 (vm=0)
		It("should decode vadc with the mandatory carry input", func() {
			desc, ok := decoder.Decode(0x402180D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluAdc))
			Expect(desc.Masked).To(BeTrue())
		})

		// vadc with vm=1 -> 0x422180D7
		It("should reject vadc without a carry input", func() {
			_, ok := decoder.Decode(0x422180D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Merge and move", func() {
		// vmerge.vvm v1, v2, v3, v0 -> 0x5C2180D7 (vm=0)
		It("should decode vmerge when masked", func() {
			desc, ok := decoder.Decode(0x5C2180D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluMerge))
			Expect(desc.Masked).To(BeTrue())
		})

		// vmv.v.v v1, v3 -> 0x5E0180D7 (vm=1, vs2=0)
		It("should decode vmv when unmasked with vs2=v0", func() {
			desc, ok := decoder.Decode(0x5E0180D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluMv))
			Expect(desc.Masked).To(BeFalse())
			Expect(desc.Rs2.IsVector).To(BeFalse())
		})

		// vmv with vs2 != v0 -> 0x5E2180D7
		It("should reject vmv with a nonzero vs2", func() {
			_, ok := decoder.Decode(0x5E2180D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Mask logic", func() {
		// vmand.mm v1, v2, v3 -> 0x6621A0D7
		It("should decode vmand.mm", func() {
			desc, ok := decoder.Decode(0x6621A0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitALU))
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluMAnd))
			Expect(desc.Mode.ALU.MaskResult).To(BeTrue())
			Expect(desc.Masked).To(BeFalse())
		})

		// mask logic requires vm=1 -> 0x6421A0D7
		It("should reject masked mask-logic encodings", func() {
			_, ok := decoder.Decode(0x6421A0D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Widening and narrowing", func() {
		// vwadd.vv v4, v2, v3 -> 0xC621A257
		It("should decode vwadd.vv at SEW16", func() {
			cfg.SEW = insts.SEW16
			desc, ok := decoder.Decode(0xC621A257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.WidthClass).To(Equal(insts.WidthWide))
			Expect(desc.Mode.ALU.Signed).To(BeTrue())
			Expect(desc.DestRegCount()).To(Equal(2))
		})

		It("should reject widening at SEW32", func() {
			_, ok := decoder.Decode(0xC621A257, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		// vwadd.vv v3, ... -> 0xC621A1D7: wide destination group misaligned
		It("should reject a misaligned wide destination", func() {
			cfg.SEW = insts.SEW16
			_, ok := decoder.Decode(0xC621A1D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		// vnsrl.wi v8, v16, 2 -> 0xB3013457
		It("should decode vnsrl.wi at SEW16", func() {
			cfg.SEW = insts.SEW16
			desc, ok := decoder.Decode(0xB3013457, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.WidthClass).To(Equal(insts.WidthNarrow))
			Expect(desc.VS2RegCount()).To(Equal(2))
		})

		It("should reject narrowing at LMUL8", func() {
			cfg.SEW = insts.SEW16
			cfg.LMUL = insts.LMUL8
			_, ok := decoder.Decode(0xB3013457, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		// vzext.vf2 v1, v2 -> 0x4A2320D7
		It("should decode vzext.vf2", func() {
			desc, ok := decoder.Decode(0x4A2320D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.ALU.Op).To(Equal(insts.AluZExt))
			Expect(desc.Mode.ALU.ExtFactor).To(Equal(uint8(2)))
		})

		It("should reject vzext.vf2 at SEW8", func() {
			cfg.SEW = insts.SEW8
			_, ok := decoder.Decode(0x4A2320D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Multiply", func() {
		// vmul.vv v1, v2, v3 -> 0x9621A0D7
		It("should route vmul.vv to the multiply unit", func() {
			desc, ok := decoder.Decode(0x9621A0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitMUL))
			Expect(desc.Mode.Mul.Op).To(Equal(insts.MulMul))
			Expect(desc.Mode.Mul.Acc).To(BeFalse())
		})

		// vmacc.vv v1, v3, v2 -> 0xB621A0D7
		It("should mark vmacc as reading its destination", func() {
			desc, ok := decoder.Decode(0xB621A0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Mul).To(Equal(insts.MulMode{Op: insts.MulMAcc, Acc: true}))
			Expect(desc.RdIsSource()).To(BeTrue())
		})

		// vsmul.vv v1, v2, v3 -> 0x9E2180D7 (OPI encoding)
		It("should route vsmul to the multiply unit", func() {
			desc, ok := decoder.Decode(0x9E2180D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitMUL))
			Expect(desc.Mode.Mul.Op).To(Equal(insts.MulSMul))
		})

		// vwmul.vv v4, v2, v3 -> 0xEE21A257
		It("should decode vwmul.vv at SEW16", func() {
			cfg.SEW = insts.SEW16
			desc, ok := decoder.Decode(0xEE21A257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Mul.Op).To(Equal(insts.MulWMul))
			Expect(desc.WidthClass).To(Equal(insts.WidthWide))
		})
	})

	Describe("Slides", func() {
		// vslidedown.vi v4, v8, 3 -> 0x3E81B257
		It("should decode vslidedown.vi", func() {
			desc, ok := decoder.Decode(0x3E81B257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitSLD))
			Expect(desc.Mode.Sld.Dir).To(Equal(insts.SlideDown))
			Expect(desc.Mode.Sld.Slide1).To(BeFalse())
			Expect(desc.Rs1.Value).To(Equal(uint32(3)))
		})

		// vslide1up.vx v2, v4, x6 -> 0x3A436157
		It("should decode vslide1up.vx", func() {
			desc, ok := decoder.Decode(0x3A436157, 0x99, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Sld).To(Equal(insts.SldMode{Dir: insts.SlideUp, Slide1: true}))
			Expect(desc.Rs1).To(Equal(insts.Scalar(0x99)))
		})

		// slides have no .vv form -> 0x3A818257
		It("should reject vslideup.vv", func() {
			_, ok := decoder.Decode(0x3A818257, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Element operations", func() {
		// vmv.x.s x5, v2 -> 0x422022D7
		It("should decode vmv.x.s as a scalar-result operation", func() {
			cfg.VL = 0
			desc, ok := decoder.Decode(0x422022D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitELEM))
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemMvXS))
			Expect(desc.Mode.Elem.ScalarResult).To(BeTrue())
			Expect(desc.Rd.IsVector).To(BeFalse())
			// vmv.x.s reads element 0 regardless of vl.
			Expect(desc.VLZero).To(BeFalse())
		})

		// vcpop.m x5, v2 -> 0x422822D7
		It("should decode vcpop.m", func() {
			desc, ok := decoder.Decode(0x422822D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemPop))
			Expect(desc.VS2RegCount()).To(Equal(1))
		})

		// vfirst.m x5, v2 -> 0x4228A2D7
		It("should decode vfirst.m", func() {
			desc, ok := decoder.Decode(0x4228A2D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemFirst))
		})

		// vmv.s.x v1, x5 -> 0x4202E0D7
		It("should decode vmv.s.x", func() {
			desc, ok := decoder.Decode(0x4202E0D7, 0x1234, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemMvSX))
			Expect(desc.Rs1).To(Equal(insts.Scalar(0x1234)))
			Expect(desc.EMUL).To(Equal(insts.EMUL1))
		})

		// vmsbf.m v1, v2 -> 0x5220A0D7
		It("should decode vmsbf.m", func() {
			desc, ok := decoder.Decode(0x5220A0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemMsbf))
			Expect(desc.DestRegCount()).To(Equal(1))
		})

		// viota.m v4, v2 -> 0x52282257
		It("should decode viota.m", func() {
			desc, ok := decoder.Decode(0x52282257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemIota))
		})

		// vid.v v4 -> 0x5208A257
		It("should decode vid.v", func() {
			desc, ok := decoder.Decode(0x5208A257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemID))
		})

		// vrgather.vv v4, v8, v12 -> 0x32860257
		It("should decode vrgather.vv", func() {
			desc, ok := decoder.Decode(0x32860257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitELEM))
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemGather))
		})

		// vcompress.vm v4, v8, v3 -> 0x5E81A257
		It("should decode vcompress.vm", func() {
			desc, ok := decoder.Decode(0x5E81A257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemCompress))
			Expect(desc.VS1RegCount()).To(Equal(1))
		})

		// vredsum.vs v1, v2, v3 -> 0x0221A0D7
		It("should decode vredsum.vs as a reduction", func() {
			desc, ok := decoder.Decode(0x0221A0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitELEM))
			Expect(desc.Mode.Elem.Op).To(Equal(insts.ElemRedSum))
			Expect(desc.Mode.Elem.Reduction).To(BeTrue())
			Expect(desc.DestRegCount()).To(Equal(1))
		})

		// reductions have no .vx form -> 0x0221E0D7
		It("should reject a scalar-operand reduction", func() {
			_, ok := decoder.Decode(0x0221E0D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Loads and stores", func() {
		// vle32.v v4, (x1) -> 0x02006207
		It("should decode vle32.v", func() {
			desc, ok := decoder.Decode(0x02006207, 0x100, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitLSU))
			Expect(desc.Mode.Lsu.Store).To(BeFalse())
			Expect(desc.Mode.Lsu.Stride).To(Equal(insts.StrideUnit))
			Expect(desc.Mode.Lsu.EEW).To(Equal(insts.SEW32))
			Expect(desc.EMUL).To(Equal(insts.EMUL1))
			Expect(desc.Rs1).To(Equal(insts.Scalar(0x100)))
		})

		// vle8.v v4, (x1) -> 0x02000207: EMUL shrinks with the narrow EEW
		It("should derive EMUL from the memory element width", func() {
			desc, ok := decoder.Decode(0x02000207, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Lsu.EEW).To(Equal(insts.SEW8))
			Expect(desc.EMUL).To(Equal(insts.EMUL1))
		})

		It("should reject an EMUL above eight registers", func() {
			cfg.SEW = insts.SEW8
			cfg.LMUL = insts.LMUL8
			_, ok := decoder.Decode(0x02006207, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		// vse32.v v4, (x1) -> 0x02006227
		It("should decode vse32.v as a store", func() {
			desc, ok := decoder.Decode(0x02006227, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Lsu.Store).To(BeTrue())
			Expect(desc.RdIsSource()).To(BeTrue())
			Expect(desc.RdIsWritten()).To(BeFalse())
		})

		// vlse32.v v4, (x1), x6 -> 0x0A606207
		It("should decode vlse32.v with the stride value", func() {
			desc, ok := decoder.Decode(0x0A606207, 0x100, 8, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Lsu.Stride).To(Equal(insts.StrideStrided))
			Expect(desc.Rs2).To(Equal(insts.Scalar(8)))
		})

		// vluxei8.v v4, (x1), v2 -> 0x06200207
		It("should decode vluxei8.v with a separate offset group", func() {
			desc, ok := decoder.Decode(0x06200207, 0x100, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Lsu.Stride).To(Equal(insts.StrideIndexed))
			Expect(desc.Mode.Lsu.EEW).To(Equal(insts.SEW8))
			Expect(desc.Mode.Lsu.OffsetEMUL).To(Equal(insts.EMUL1))
			Expect(desc.Rs2).To(Equal(insts.Vector(2)))
		})

		// lumop != 0 selects unsupported unit-stride variants -> 0x02806207
		It("should reject whole-register load encodings", func() {
			_, ok := decoder.Decode(0x02806207, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		// nf=1 -> 0x22006207
		It("should reject segmented loads", func() {
			_, ok := decoder.Decode(0x22006207, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Group alignment", func() {
		It("should reject a misaligned source group", func() {
			cfg.LMUL = insts.LMUL2
			// vadd.vv v1, v2, v3: vs1 and vd are odd under EMUL2.
			_, ok := decoder.Decode(0x022180D7, 0, 0, cfg)
			Expect(ok).To(BeFalse())
		})

		It("should accept aligned groups", func() {
			cfg.LMUL = insts.LMUL2
			// vadd.vv v4, v2, v6 -> 0x02230257
			desc, ok := decoder.Decode(0x02230257, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.EMUL).To(Equal(insts.EMUL2))
		})
	})

	Describe("Configuration", func() {
		// vsetvli x1, x2, e32,m1 -> 0x010170D7
		It("should decode vsetvli", func() {
			desc, ok := decoder.Decode(0x010170D7, 7, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Unit).To(Equal(insts.UnitCFG))
			Expect(desc.Mode.Cfg.SEW).To(Equal(insts.SEW32))
			Expect(desc.Mode.Cfg.LMUL).To(Equal(insts.LMUL1))
			Expect(desc.Mode.Cfg.SetMaxVL).To(BeFalse())
			Expect(desc.Mode.Cfg.KeepVL).To(BeFalse())
			Expect(desc.Rs1).To(Equal(insts.Scalar(7)))
		})

		// vsetvli x1, x0, e32,m1 -> 0x010070D7
		It("should select the maximum length for rs1=x0, rd!=x0", func() {
			desc, ok := decoder.Decode(0x010070D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Cfg.SetMaxVL).To(BeTrue())
		})

		// vsetvli x0, x0, e32,m1 -> 0x01007057
		It("should keep the current length for rs1=x0, rd=x0", func() {
			desc, ok := decoder.Decode(0x01007057, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Cfg.KeepVL).To(BeTrue())
		})

		// vsetivli x1, 5, e32,m1 -> 0xC102F0D7
		It("should decode vsetivli with the immediate length", func() {
			desc, ok := decoder.Decode(0xC102F0D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Rs1).To(Equal(insts.Scalar(5)))
			Expect(desc.Mode.Cfg.SetMaxVL).To(BeFalse())
		})

		// vsetvl x1, x2, x3 -> 0x803170D7
		It("should decode vsetvl deferring vtype to rs2", func() {
			desc, ok := decoder.Decode(0x803170D7, 0, 0, cfg)

			Expect(ok).To(BeTrue())
			Expect(desc.Mode.Cfg.VTypeFromReg).To(BeTrue())
		})
	})

	Describe("DecodeVType", func() {
		It("should decode supported vtype values", func() {
			sew, lmul := insts.DecodeVType(0x10)
			Expect(sew).To(Equal(insts.SEW32))
			Expect(lmul).To(Equal(insts.LMUL1))

			sew, lmul = insts.DecodeVType(0x11)
			Expect(sew).To(Equal(insts.SEW32))
			Expect(lmul).To(Equal(insts.LMUL2))
		})

		It("should flag unsupported element widths", func() {
			sew, _ := insts.DecodeVType(0x18) // e64
			Expect(sew).To(Equal(insts.SEWInvalid))
		})

		It("should flag reserved upper bits", func() {
			sew, _ := insts.DecodeVType(0x110)
			Expect(sew).To(Equal(insts.SEWInvalid))
		})
	})
})
