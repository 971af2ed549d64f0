package core

type Resp int

const (
	RESP_OKAY   Resp = 0
	RESP_SLVERR Resp = 2
	RESP_DECERR Resp = 3
	// RESP_BUSY is never driven on the bus. ReadReg and WriteReg return it
	// when the adapter still holds an open transaction and refused the issue.
	RESP_BUSY Resp = -1
)

func (r Resp) String() string {
	switch r {
	case RESP_OKAY:
		return "OKAY"
	case RESP_SLVERR:
		return "SLVERR"
	case RESP_DECERR:
		return "DECERR"
	case RESP_BUSY:
		return "BUSY"
	}
	return "RESP?"
}

const STROBE_ALL = 0xF

// Request is one bus transaction. A write executes only once both the address
// and the data phase are valid; missing phases can be supplied later.
type Request struct {
	Write     bool
	Addr      uint32
	AddrValid bool
	Data      uint32
	DataValid bool
	Strobe    uint8
}

type Response struct {
	Data uint32
	Resp Resp
}

// BusAdapter holds at most one outstanding transaction.
type BusAdapter struct {
	req       Request
	busy      bool
	resp      Response
	respValid bool
}

// Issue starts a transaction. It is refused while a previous one has not been taken.
func (ba *BusAdapter) Issue(req Request) bool {
	if ba.busy {
		return false
	}
	ba.req = req
	ba.busy = true
	ba.respValid = false
	return true
}

// SupplyAddr completes the address phase of the outstanding transaction.
func (ba *BusAdapter) SupplyAddr(addr uint32) bool {
	if !ba.busy || ba.req.AddrValid {
		return false
	}
	ba.req.Addr = addr
	ba.req.AddrValid = true
	return true
}

// SupplyData completes the data phase of the outstanding write.
func (ba *BusAdapter) SupplyData(data uint32, strobe uint8) bool {
	if !ba.busy || !ba.req.Write || ba.req.DataValid {
		return false
	}
	ba.req.Data = data
	ba.req.Strobe = strobe
	ba.req.DataValid = true
	return true
}

// Take returns the response once it has been produced and frees the adapter.
func (ba *BusAdapter) Take() (Response, bool) {
	if !ba.respValid {
		return Response{}, false
	}
	ba.respValid = false
	ba.busy = false
	return ba.resp, true
}

func (ba *BusAdapter) Busy() bool {
	return ba.busy
}

// ready reports a transaction with all phases present and no response yet.
func (ba *BusAdapter) ready() bool {
	if !ba.busy || ba.respValid || !ba.req.AddrValid {
		return false
	}
	return !ba.req.Write || ba.req.DataValid
}

func (ba *BusAdapter) complete(resp Response) {
	ba.resp = resp
	ba.respValid = true
}

func (ba *BusAdapter) reset() {
	*ba = BusAdapter{}
}

// stepBus executes the outstanding transaction against the register file.
func (c *Core) stepBus() {
	if !c.bus.ready() {
		return
	}
	req := c.bus.req
	if req.Write {
		c.bus.complete(Response{Resp: c.writeReg(req.Addr, req.Data, req.Strobe)})
		return
	}
	data, resp := c.readReg(req.Addr)
	c.bus.complete(Response{Data: data, Resp: resp})
}
