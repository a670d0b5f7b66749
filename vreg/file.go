// Package vreg provides the vector register file storage and the shared
// read/write port gateway.
package vreg

import "fmt"

// NumRegs is the number of logical vector registers.
const NumRegs = 32

// File is the physical vector register file: 32 registers of VLEN bits each.
// Writes are byte-masked; reads return the full register.
type File struct {
	vlenBits int
	regs     [NumRegs][]byte
}

// NewFile creates a register file with the given register width in bits.
// The width must be a multiple of 32 between 32 and 512 so that a byte mask
// fits in a single 64-bit word.
func NewFile(vlenBits int) (*File, error) {
	if vlenBits < 32 || vlenBits > 512 || vlenBits%32 != 0 {
		return nil, fmt.Errorf("unsupported vector register width %d bits", vlenBits)
	}
	f := &File{vlenBits: vlenBits}
	for i := range f.regs {
		f.regs[i] = make([]byte, vlenBits/8)
	}
	return f, nil
}

// VLenBits returns the register width in bits.
func (f *File) VLenBits() int { return f.vlenBits }

// VLenBytes returns the register width in bytes.
func (f *File) VLenBytes() int { return f.vlenBits / 8 }

// Read returns a copy of the named register.
func (f *File) Read(index uint8) []byte {
	out := make([]byte, len(f.regs[index]))
	copy(out, f.regs[index])
	return out
}

// Write stores data into the named register under a byte mask: bit i of mask
// enables byte i. Bytes with a clear mask bit are left unmodified.
func (f *File) Write(index uint8, data []byte, mask uint64) {
	reg := f.regs[index]
	for i := 0; i < len(reg) && i < len(data); i++ {
		if mask&(1<<uint(i)) != 0 {
			reg[i] = data[i]
		}
	}
}

// Fill overwrites a whole register, for test setup and state loading.
func (f *File) Fill(index uint8, data []byte) {
	copy(f.regs[index], data)
	for i := len(data); i < len(f.regs[index]); i++ {
		f.regs[index][i] = 0
	}
}

// Reset clears every register to zero.
func (f *File) Reset() {
	for i := range f.regs {
		for j := range f.regs[i] {
			f.regs[i][j] = 0
		}
	}
}
