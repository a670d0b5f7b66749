package vreg

// WriteReq is a single-port register write request.
type WriteReq struct {
	Enable bool
	Index  uint8
	Mask   uint64
	Data   []byte
}

// ReadReq is a single-port register read request.
type ReadReq struct {
	Enable bool
	Index  uint8
}

// Gateway arbitrates the register file's single read port and single write
// port between the vector core and a scalar slave client. The vector side
// always wins; a scalar request is held pending and drains on the first
// cycle the vector side leaves the port idle. Requests at this interface are
// never refused, so there is no backpressure signal: admission gating
// upstream guarantees at most one vector request per port per cycle.
type Gateway struct {
	file *File

	heldWrite WriteReq
	heldRead  ReadReq

	scalarReadData  []byte
	scalarReadValid bool
}

// NewGateway wraps a register file.
func NewGateway(f *File) *Gateway {
	return &Gateway{file: f}
}

// File returns the underlying register file.
func (g *Gateway) File() *File { return g.file }

// SubmitScalarWrite queues a write from the scalar client. A previously held
// request is overwritten; the client is expected to wait for completion.
func (g *Gateway) SubmitScalarWrite(req WriteReq) {
	g.heldWrite = req
}

// SubmitScalarRead queues a read from the scalar client.
func (g *Gateway) SubmitScalarRead(req ReadReq) {
	g.heldRead = req
}

// ScalarReadData returns the data for a completed scalar read, once.
func (g *Gateway) ScalarReadData() ([]byte, bool) {
	if !g.scalarReadValid {
		return nil, false
	}
	g.scalarReadValid = false
	return g.scalarReadData, true
}

// ScalarPending reports whether a scalar request is still held.
func (g *Gateway) ScalarPending() bool {
	return g.heldWrite.Enable || g.heldRead.Enable
}

// Tick applies the vector side's port activity for this cycle and drains a
// held scalar request on any port the vector side left idle.
func (g *Gateway) Tick(vecWrite WriteReq, vecRead ReadReq) []byte {
	if vecWrite.Enable {
		g.file.Write(vecWrite.Index, vecWrite.Data, vecWrite.Mask)
	} else if g.heldWrite.Enable {
		g.file.Write(g.heldWrite.Index, g.heldWrite.Data, g.heldWrite.Mask)
		g.heldWrite = WriteReq{}
	}

	var readData []byte
	if vecRead.Enable {
		readData = g.file.Read(vecRead.Index)
	} else if g.heldRead.Enable {
		g.scalarReadData = g.file.Read(g.heldRead.Index)
		g.scalarReadValid = true
		g.heldRead = ReadReq{}
	}
	return readData
}

// Reset drops any held scalar request.
func (g *Gateway) Reset() {
	g.heldWrite = WriteReq{}
	g.heldRead = ReadReq{}
	g.scalarReadValid = false
}
