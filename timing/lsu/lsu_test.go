package lsu_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vproclab/vvsim/insts"
	"github.com/vproclab/vvsim/mem"
	"github.com/vproclab/vvsim/timing/lsu"
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
		model   *mem.Model
		u       *lsu.Unit
		cfg     insts.Config
	)

	BeforeEach(func() {
		decoder = insts.NewDecoder()
		var err error
		file, err = vreg.NewFile(128)
		Expect(err).ToNot(HaveOccurred())
		model = mem.NewModel(1024, 32, 1)
		u = lsu.New(16, 2, false)
		cfg = insts.Config{SEW: insts.SEW32, LMUL: insts.LMUL1, VL: 4}
	})

	decode := func(word, rs1, rs2 uint32) *insts.Descriptor {
		desc, ok := decoder.Decode(word, rs1, rs2, cfg)
		Expect(ok).To(BeTrue())
		return desc
	}

	// drive runs the unit and the memory port together, core-style: the
	// memory model ticks after the unit each cycle.
	drive := func() {
		p := filePort{file: file}
		for i := 0; i < 128; i++ {
			res := u.Tick(p, model)
			if res.Write.Enable {
				file.Write(res.Write.Index, res.Write.Data, res.Write.Mask)
			}
			model.Tick()
		}
		Expect(u.Busy()).To(BeFalse())
	}

	It("should load a full register unit-stride", func() {
		model.WriteBytes(0x100, []byte{
			1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
		})

		u.Admit(decode(0x02006207, 0x100, 0)) // vle32.v v4, (x0)
		drive()

		Expect(readWords(file, 4)).To(Equal([]uint32{
			0x04030201, 0x08070605, 0x0C0B0A09, 0x100F0E0D,
		}))
	})

	It("should leave tail elements untouched on a short load", func() {
		cfg.VL = 2
		model.WriteBytes(0x100, words32(0x11, 0x22, 0x33, 0x44))
		file.Fill(4, words32(9, 9, 9, 9))

		u.Admit(decode(0x02006207, 0x100, 0))
		drive()

		Expect(readWords(file, 4)).To(Equal([]uint32{0x11, 0x22, 9, 9}))
	})

	It("should load from an unaligned base", func() {
		bytes := make([]byte, 32)
		for i := range bytes {
			bytes[i] = byte(0x10 + i)
		}
		model.WriteBytes(0x100, bytes)

		u.Admit(decode(0x02006207, 0x102, 0))
		drive()

		want := make([]byte, 16)
		for i := range want {
			want[i] = byte(0x12 + i)
		}
		Expect(file.Read(4)).To(Equal(want))
	})

	It("should store a full register unit-stride", func() {
		file.Fill(4, words32(0x11223344, 0x55667788, 0x99AABBCC, 0xDDEEFF00))

		u.Admit(decode(0x02006227, 0x100, 0)) // vse32.v v4, (x0)
		drive()

		Expect(model.ReadBytes(0x100, 16)).To(Equal(
			words32(0x11223344, 0x55667788, 0x99AABBCC, 0xDDEEFF00)))
	})

	It("should store only active elements under the mask", func() {
		pre := make([]byte, 16)
		for i := range pre {
			pre[i] = 0xEE
		}
		model.WriteBytes(0x100, pre)
		file.Fill(0, []byte{0b0101})
		file.Fill(4, words32(0x11, 0x22, 0x33, 0x44))

		u.Admit(decode(0x00006227, 0x100, 0)) // vse32.v v4, (x0), v0.t
		drive()

		Expect(model.ReadBytes(0x100, 16)).To(Equal(words32(
			0x11, 0xEEEEEEEE, 0x33, 0xEEEEEEEE)))
	})

	It("should gather strided elements", func() {
		model.WriteBytes(0x100, words32(0x11, 0))
		model.WriteBytes(0x108, words32(0x22, 0))
		model.WriteBytes(0x110, words32(0x33, 0))
		model.WriteBytes(0x118, words32(0x44, 0))

		u.Admit(decode(0x0A606207, 0x100, 8)) // vlse32.v v4, (x0), x6
		drive()

		Expect(readWords(file, 4)).To(Equal([]uint32{0x11, 0x22, 0x33, 0x44}))
	})

	It("should load indexed bytes through an offset vector", func() {
		cfg.SEW = insts.SEW8
		model.WriteBytes(0x100, []byte{0xAA, 0xBB, 0xCC})
		file.Fill(2, []byte{0, 1, 1, 2})

		u.Admit(decode(0x06200207, 0x100, 0)) // vluxei8.v v4, (x0), v2
		drive()

		Expect(file.Read(4)[:4]).To(Equal([]byte{0xAA, 0xBB, 0xBB, 0xCC}))
	})

	// The store data and the offset vector name the same register; each
	// fetch must land in its own buffer.
	It("should store indexed through the data register itself", func() {
		cfg.SEW = insts.SEW8
		file.Fill(2, []byte{4, 5, 6, 7})

		u.Admit(decode(0x06200127, 0x100, 0)) // vsuxei8.v v2, (x0), v2
		drive()

		Expect(model.ReadBytes(0x104, 4)).To(Equal([]byte{4, 5, 6, 7}))
	})

	It("should split an indexed element across memory words", func() {
		cfg.VL = 1
		model.WriteBytes(0x100, []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17})
		file.Fill(2, []byte{2}) // byte offset 2 lands mid-word

		u.Admit(decode(0x06200207, 0x100, 0)) // vluxei8.v v4, (x0), v2
		drive()

		Expect(readWords(file, 4)[0]).To(Equal(uint32(0x15141312)))
	})

	It("should flag bus errors past the end of memory", func() {
		u.Admit(decode(0x02006207, 2048, 0))
		drive()

		Expect(u.ErrFlag()).To(BeTrue())
		Expect(u.ErrFlag()).To(BeFalse())
	})
})
