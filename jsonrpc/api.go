package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"eval_fpgaio/core"
	"eval_fpgaio/device/hchainio"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
	"eval_fpgaio/util"
	"eval_fpgaio/version"
)

const (
	STATUS_SUCCESS = "S"
	STATUS_ERROR   = "E"
)

const (
	CODE_OK              = 0
	CODE_INVALID_COMMAND = 14
	CODE_INVALID_PARAM   = 15
	CODE_BUS_ERROR       = 16
	CODE_DEVICE_ERROR    = 17
)

const (
	CMD_VERSION  = "version"
	CMD_READ     = "read"
	CMD_WRITE    = "write"
	CMD_IRQ_WAIT = "irq_wait"
	CMD_STATUS   = "status"
	CMD_DUMP     = "dump"
)

const (
	DEFAULT_IRQ_WAIT_MS = 1000
	MAX_IRQ_WAIT_MS     = 60000
)

type APIResponse struct {
	Status string          `json:"status"`
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	When   int64           `json:"when"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RegParam addresses a register by offset or by name.
type RegParam struct {
	Addr      *uint32 `json:"addr,omitempty"`
	Reg       string  `json:"reg,omitempty"`
	Value     uint32  `json:"value,omitempty"`
	Strobe    *uint8  `json:"strobe,omitempty"`
	Line      string  `json:"line,omitempty"`
	TimeoutMs int     `json:"timeout_ms,omitempty"`
}

type RegValue struct {
	Addr  uint32 `json:"addr"`
	Name  string `json:"name"`
	Value uint32 `json:"value"`
	Hex   string `json:"hex"`
}

func regValue(addr, v uint32) RegValue {
	return RegValue{Addr: addr, Name: core.RegisterName(addr), Value: v, Hex: util.HexStringFromNumber(4, uint64(v))}
}

type IRQState struct {
	Line     string `json:"line"`
	Asserted bool   `json:"asserted"`
}

type VersionData struct {
	Software  version.VersionConfig `json:"software"`
	IOVersion string                `json:"io_version"`
	BuildId   string                `json:"build_id"`
}

type StatusData struct {
	Uptime   string      `json:"uptime"`
	Requests uint64      `json:"requests"`
	Errors   uint64      `json:"errors"`
	Device   interface{} `json:"device,omitempty"`
}

type apiError struct {
	code int
	err  error
}

func (e *apiError) Error() string { return e.err.Error() }

func invalidParam(format string, args ...interface{}) error {
	return &apiError{CODE_INVALID_PARAM, fmt.Errorf(format, args...)}
}

// Strober is implemented by devices that accept partial writes.
type Strober interface {
	WriteStrobe(addr, value uint32, strobe uint8) error
}

// API serves register access for one device.
type API struct {
	Dev regbus.Device
	// DeviceStatus, when set, adds backend specific state to the status reply.
	DeviceStatus func() (interface{}, error)

	requests atomic.Uint64
	errors   atomic.Uint64
}

func NewAPI(dev regbus.Device) *API {
	return &API{Dev: dev}
}

// Handler adapts the API to the server callback.
func (api *API) Handler() ServerHandlerFunc {
	return func(s *Server, conn net.Conn, req *APIRequest, rawbuf []byte, err error) error {
		resp := api.Dispatch(req, rawbuf, err)
		buf, err := PrepareJSONResponse(resp)
		if err != nil {
			return err
		}
		_, err = conn.Write(buf)
		return err
	}
}

// Dispatch runs one request. decodeErr is the error from parsing rawbuf, if any.
func (api *API) Dispatch(req *APIRequest, rawbuf []byte, decodeErr error) APIResponse {
	api.requests.Add(1)
	var data interface{}
	err := decodeErr
	if err != nil {
		err = &apiError{CODE_INVALID_COMMAND, fmt.Errorf("malformed request: %w", err)}
	} else {
		data, err = api.run(req, rawbuf)
	}

	resp := APIResponse{When: time.Now().Unix()}
	if err != nil {
		api.errors.Add(1)
		resp.Status = STATUS_ERROR
		resp.Code = CODE_DEVICE_ERROR
		var ae *apiError
		if errors.As(err, &ae) {
			resp.Code = ae.code
		} else if errors.Is(err, regbus.ErrBusResponse) {
			resp.Code = CODE_BUS_ERROR
		}
		resp.Msg = err.Error()
		log.Debugf("%s: %v", req.Command, err)
		return resp
	}
	resp.Status = STATUS_SUCCESS
	resp.Code = CODE_OK
	resp.Msg = req.Command
	if data != nil {
		if resp.Data, err = json.Marshal(data); err != nil {
			resp.Status = STATUS_ERROR
			resp.Code = CODE_DEVICE_ERROR
			resp.Msg = err.Error()
		}
	}
	return resp
}

func (api *API) run(req *APIRequest, rawbuf []byte) (interface{}, error) {
	var p RegParam
	if err := parseParameter(rawbuf, &p); err != nil {
		return nil, &apiError{CODE_INVALID_PARAM, err}
	}
	switch strings.ToLower(req.Command) {
	case CMD_VERSION:
		return api.version()
	case CMD_READ:
		addr, err := resolveAddr(&p)
		if err != nil {
			return nil, err
		}
		v, err := api.Dev.Read32(addr)
		if err != nil {
			return nil, err
		}
		return regValue(addr, v), nil
	case CMD_WRITE:
		addr, err := resolveAddr(&p)
		if err != nil {
			return nil, err
		}
		if p.Strobe != nil && *p.Strobe != core.STROBE_ALL {
			sw, ok := api.Dev.(Strober)
			if !ok {
				return nil, invalidParam("device does not support byte strobes")
			}
			err = sw.WriteStrobe(addr, p.Value, *p.Strobe)
		} else {
			err = api.Dev.Write32(addr, p.Value)
		}
		if err != nil {
			return nil, err
		}
		return regValue(addr, p.Value), nil
	case CMD_IRQ_WAIT:
		return api.irqWait(&p)
	case CMD_STATUS:
		return api.status()
	case CMD_DUMP:
		return api.dump()
	}
	return nil, &apiError{CODE_INVALID_COMMAND, fmt.Errorf("invalid command %q", req.Command)}
}

func resolveAddr(p *RegParam) (uint32, error) {
	if p.Reg != "" {
		if addr, ok := core.RegisterNames()[strings.ToUpper(p.Reg)]; ok {
			return addr, nil
		}
		if addr, err := util.ParseUint32(p.Reg); err == nil {
			return addr, nil
		}
		return 0, invalidParam("unknown register %q", p.Reg)
	}
	if p.Addr == nil {
		return 0, invalidParam("missing addr")
	}
	return *p.Addr, nil
}

func (api *API) version() (interface{}, error) {
	cc := hchainio.NewCommon(api.Dev)
	v, err := cc.GetVersion()
	if err != nil {
		return nil, err
	}
	id, err := cc.GetBuildId()
	if err != nil {
		return nil, err
	}
	return VersionData{Software: version.GetVersionConfig(), IOVersion: v.String(), BuildId: id.String()}, nil
}

func (api *API) irqWait(p *RegParam) (interface{}, error) {
	name := p.Line
	if name == "" {
		name = core.IRQ_CMD_RX.String()
	}
	line, ok := core.ParseIRQLine(name)
	if !ok {
		return nil, invalidParam("unknown irq line %q", name)
	}
	ms := p.TimeoutMs
	if ms <= 0 {
		ms = DEFAULT_IRQ_WAIT_MS
	}
	if ms > MAX_IRQ_WAIT_MS {
		ms = MAX_IRQ_WAIT_MS
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(ms)*time.Millisecond)
	defer cancel()
	err := api.Dev.WaitIRQ(ctx, line)
	if errors.Is(err, regbus.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return IRQState{Line: line.String()}, nil
	}
	if err != nil {
		return nil, err
	}
	return IRQState{Line: line.String(), Asserted: true}, nil
}

func (api *API) status() (interface{}, error) {
	st := StatusData{
		Uptime:   util.UptimeInString(),
		Requests: api.requests.Load(),
		Errors:   api.errors.Load(),
	}
	if api.DeviceStatus != nil {
		d, err := api.DeviceStatus()
		if err != nil {
			return nil, err
		}
		st.Device = d
	}
	return st, nil
}

func (api *API) dump() (interface{}, error) {
	regs, err := regbus.Dump(api.Dev)
	if err != nil {
		return nil, err
	}
	names := core.RegisterNames()
	out := make([]RegValue, 0, len(regs))
	for name, v := range regs {
		out = append(out, regValue(names[name], v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out, nil
}
