package vmul_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/timing/vmul"
	"github.com/vproclab/vvsim/vreg"
)

type filePort struct {
	file *vreg.File
}

func (p filePort) Read(index uint8) []byte { return p.file.Read(index) }

func words32(vals ...uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

func halves16(vals ...uint16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func readWords(file *vreg.File, index uint8) []uint32 {
	data := file.Read(index)
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out
}

var _ = Describe("Unit", func() {
	var (
		decoder *insts.Decoder
		file    *vreg.File
		u       *vmul.Unit
		cfg     insts.Config
	)

	BeforeEach(func() {
		decoder = insts.NewDecoder()
		var err error
		file, err = vreg.NewFile(128)
		Expect(err).ToNot(HaveOccurred())
		u = vmul.New(16, 2, false)
		cfg = insts.Config{SEW: insts.SEW32, LMUL: insts.LMUL1, VL: 4}
	})

	decode := func(word uint32) *insts.Descriptor {
		desc, ok := decoder.Decode(word, 0, 0, cfg)
		Expect(ok).To(BeTrue())
		return desc
	}

	drive := func() {
		p := filePort{file: file}
		for i := 0; i < 64; i++ {
			res := u.Tick(p)
			if res.Write.Enable {
				file.Write(res.Write.Index, res.Write.Data, res.Write.Mask)
			}
		}
		Expect(u.Busy()).To(BeFalse())
	}

	It("should multiply two vectors", func() {
		file.Fill(2, words32(2, 3, 4, 5))
		file.Fill(3, words32(10, 11, 12, 13))

		u.Admit(decode(0x9621A0D7)) // vmul.vv v1, v2, v3
		drive()

		Expect(readWords(file, 1)).To(Equal([]uint32{20, 33, 48, 65}))
	})

	It("should accumulate into the destination", func() {
		file.Fill(1, words32(1, 1, 1, 1))
		file.Fill(2, words32(2, 2, 2, 2))
		file.Fill(3, words32(3, 3, 3, 3))

		u.Admit(decode(0xB621A0D7)) // vmacc.vv v1, v3, v2
		drive()

		Expect(readWords(file, 1)).To(Equal([]uint32{7, 7, 7, 7}))
	})

	// vs2 and the accumulator name the same register; the routing must fill
	// both operand buffers from it.
	It("should accumulate when vs2 aliases the destination", func() {
		file.Fill(1, words32(2, 2, 2, 2))
		file.Fill(3, words32(3, 3, 3, 3))

		u.Admit(decode(0xB611A0D7)) // vmacc.vv v1, v3, v1
		drive()

		Expect(readWords(file, 1)).To(Equal([]uint32{8, 8, 8, 8}))
	})

	It("should return the signed high half", func() {
		file.Fill(2, words32(0xFFFFFFFF, 0x40000000, 0, 0))
		file.Fill(3, words32(2, 4, 0, 0))

		u.Admit(decode(0x9E21A0D7)) // vmulh.vv v1, v2, v3
		drive()

		Expect(readWords(file, 1)).To(Equal([]uint32{0xFFFFFFFF, 1, 0, 0}))
	})

	It("should widen products into a double-width group", func() {
		cfg.SEW = insts.SEW16
		cfg.VL = 8
		file.Fill(2, halves16(0xFFFF, 2, 3, 4, 5, 6, 7, 8)) // -1 first
		file.Fill(3, halves16(3, 3, 3, 3, 3, 3, 3, 3))

		u.Admit(decode(0xEE21A257)) // vwmul.vv v4, v2, v3
		drive()

		Expect(readWords(file, 4)).To(Equal([]uint32{0xFFFFFFFD, 6, 9, 12}))
		Expect(readWords(file, 5)).To(Equal([]uint32{15, 18, 21, 24}))
	})

	It("should saturate fractional multiplies and raise vxsat", func() {
		cfg.SEW = insts.SEW8
		cfg.VL = 2
		file.Fill(2, []byte{0x80, 0x40})
		file.Fill(3, []byte{0x80, 0x40})

		u.Admit(decode(0x9E2180D7)) // vsmul.vv v1, v2, v3
		drive()

		got := file.Read(1)
		Expect(got[:2]).To(Equal([]byte{0x7F, 0x20}))
		Expect(u.SatFlag()).To(BeTrue())
		Expect(u.SatFlag()).To(BeFalse())
	})
})
