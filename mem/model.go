// Package mem models the pipelined request/response memory port used by the
// load-store unit: requests are granted per cycle, responses return a fixed
// or cache-dependent number of cycles later, strictly in order, with a
// per-response error flag.
package mem

// Request is one memory transaction: a full-width read, or a byte-enabled
// write.
type Request struct {
	Addr   uint32
	We     bool
	ByteEn uint8
	WData  uint64
}

// Response is the delayed answer to a request. Writes acknowledge through
// the same channel with the pre-write read data.
type Response struct {
	Valid bool
	Data  uint64
	Err   bool
}

// Port is the memory interface seen by the load-store unit. Submit presents
// a request and reports the grant; Response presents this cycle's response,
// if any; Tick advances one cycle.
type Port interface {
	Submit(req Request) bool
	Response() Response
	Tick()
	WidthBytes() int
}

// Statistics counts port traffic.
type Statistics struct {
	Reads  uint64
	Writes uint64
	Errors uint64
}

// Model is a flat memory behind a fixed-latency response queue. Requests are
// always granted; an access past the end of the array completes with the
// error flag set, mirroring a bus error.
type Model struct {
	data       []byte
	widthBytes int
	queue      []Response
	pending    Response
	hasPending bool
	stats      Statistics
}

// NewModel creates a memory of size bytes behind a port of widthBits (32 or
// 64) with the given response latency in cycles.
func NewModel(size int, widthBits, latency int) *Model {
	if latency < 1 {
		latency = 1
	}
	return &Model{
		data:       make([]byte, size),
		widthBytes: widthBits / 8,
		queue:      make([]Response, latency),
	}
}

// WidthBytes returns the port width in bytes.
func (m *Model) WidthBytes() int { return m.widthBytes }

// Size returns the memory size in bytes.
func (m *Model) Size() int { return len(m.data) }

// Stats returns traffic statistics.
func (m *Model) Stats() Statistics { return m.stats }

// Submit accepts a request for this cycle. The model always grants.
func (m *Model) Submit(req Request) bool {
	addr := int(req.Addr) &^ (m.widthBytes - 1)
	err := addr+m.widthBytes > len(m.data)

	var data uint64
	if !err {
		for i := 0; i < m.widthBytes; i++ {
			data |= uint64(m.data[addr+i]) << (8 * uint(i))
		}
	}

	switch {
	case err:
		m.stats.Errors++
	case req.We:
		m.stats.Writes++
		for i := 0; i < m.widthBytes; i++ {
			if req.ByteEn&(1<<uint(i)) != 0 {
				m.data[addr+i] = byte(req.WData >> (8 * uint(i)))
			}
		}
	default:
		m.stats.Reads++
	}

	m.pending = Response{Valid: true, Data: data, Err: err}
	m.hasPending = true
	return true
}

// Response returns the response that has aged through the latency queue.
func (m *Model) Response() Response {
	return m.queue[len(m.queue)-1]
}

// Tick shifts the response queue one cycle.
func (m *Model) Tick() {
	copy(m.queue[1:], m.queue[:len(m.queue)-1])
	if m.hasPending {
		m.queue[0] = m.pending
		m.hasPending = false
	} else {
		m.queue[0] = Response{}
	}
}

// ReadBytes copies out a memory range, for dumps and test assertions.
func (m *Model) ReadBytes(addr uint32, n int) []byte {
	out := make([]byte, n)
	copy(out, m.data[addr:])
	return out
}

// WriteBytes fills a memory range, for image loading and test setup.
func (m *Model) WriteBytes(addr uint32, data []byte) {
	copy(m.data[addr:], data)
}

// Reset clears in-flight responses but preserves memory contents.
func (m *Model) Reset() {
	for i := range m.queue {
		m.queue[i] = Response{}
	}
	m.hasPending = false
	m.stats = Statistics{}
}
