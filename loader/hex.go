// Package loader provides memory image loading for the simulator. Images use
// the plain hex format produced by objcopy -O verilog: optional "@addr"
// records set the load address (a word index), and whitespace-separated hex
// words fill memory from there.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Segment is one contiguous run of loaded memory.
type Segment struct {
	// Addr is the byte address the segment loads at.
	Addr uint32
	// Data contains the segment contents, little-endian words.
	Data []byte
}

// Image is a parsed memory image.
type Image struct {
	Segments []Segment
}

// Size returns the highest byte address the image touches.
func (img *Image) Size() int {
	max := 0
	for _, s := range img.Segments {
		if end := int(s.Addr) + len(s.Data); end > max {
			max = end
		}
	}
	return max
}

// LoadHexFile reads a hex image from a file.
func LoadHexFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() { _ = f.Close() }()
	img, err := LoadHex(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadHex parses a hex image. Addresses in "@" records count 32-bit words,
// matching the memory initialization files the hardware testbenches use.
func LoadHex(r io.Reader) (*Image, error) {
	img := &Image{}
	var cur *Segment

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		for _, tok := range strings.Fields(sc.Text()) {
			if strings.HasPrefix(tok, "//") || strings.HasPrefix(tok, "#") {
				break // comment runs to end of line
			}
			if strings.HasPrefix(tok, "@") {
				addr, err := strconv.ParseUint(tok[1:], 16, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad address %q: %w", line, tok, err)
				}
				img.Segments = append(img.Segments, Segment{Addr: uint32(addr) * 4})
				cur = &img.Segments[len(img.Segments)-1]
				continue
			}
			word, err := strconv.ParseUint(tok, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad word %q: %w", line, tok, err)
			}
			if cur == nil {
				img.Segments = append(img.Segments, Segment{})
				cur = &img.Segments[len(img.Segments)-1]
			}
			cur.Data = append(cur.Data,
				byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return img, nil
}
