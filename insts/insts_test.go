package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vproclab/vvsim/insts"
)

var _ = Describe("Insts Package", func() {
	It("should report element widths", func() {
		Expect(insts.SEW8.Bits()).To(Equal(8))
		Expect(insts.SEW16.Bytes()).To(Equal(2))
		Expect(insts.SEW32.Bits()).To(Equal(32))
		Expect(insts.SEWInvalid.Bits()).To(Equal(0))
	})

	It("should report group sizes", func() {
		Expect(insts.EMUL1.Count()).To(Equal(1))
		Expect(insts.EMUL8.Count()).To(Equal(8))

		e, ok := insts.EMUL4.Double()
		Expect(ok).To(BeTrue())
		Expect(e).To(Equal(insts.EMUL8))

		_, ok = insts.EMUL8.Double()
		Expect(ok).To(BeFalse())
	})

	Describe("MaxVL", func() {
		It("should scale with SEW and LMUL", func() {
			Expect(insts.MaxVL(128, insts.SEW32, insts.LMUL1)).To(Equal(uint32(4)))
			Expect(insts.MaxVL(128, insts.SEW8, insts.LMUL8)).To(Equal(uint32(128)))
			Expect(insts.MaxVL(128, insts.SEW16, insts.LMULF2)).To(Equal(uint32(4)))
			Expect(insts.MaxVL(256, insts.SEW32, insts.LMUL2)).To(Equal(uint32(16)))
		})

		It("should return zero for the invalid width", func() {
			Expect(insts.MaxVL(128, insts.SEWInvalid, insts.LMUL1)).To(BeZero())
		})
	})

	Describe("Descriptor group counts", func() {
		It("should double the destination group for widening", func() {
			d := &insts.Descriptor{
				Unit:       insts.UnitALU,
				WidthClass: insts.WidthWide,
				Rd:         insts.RegOperand{IsVector: true, Index: 4},
				EMUL:       insts.EMUL2,
			}
			Expect(d.DestEMUL()).To(Equal(insts.EMUL4))
			Expect(d.DestRegCount()).To(Equal(4))
		})

		It("should double the vs2 group for narrowing", func() {
			d := &insts.Descriptor{
				Unit:       insts.UnitALU,
				WidthClass: insts.WidthNarrow,
				Rs2:        insts.Vector(8),
				Rd:         insts.RegOperand{IsVector: true, Index: 4},
				EMUL:       insts.EMUL2,
			}
			Expect(d.VS2EMUL()).To(Equal(insts.EMUL4))
			Expect(d.DestEMUL()).To(Equal(insts.EMUL2))
		})
	})
})
