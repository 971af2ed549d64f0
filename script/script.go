// Package script runs Lua bring-up scripts against a register device.
//
// Globals available to a script:
//
//	reg_read(addr)            -> value
//	reg_write(addr, value)
//	irq_wait(line, ms)        -> true, or false on timeout
//	sleep_ms(ms)
//	log(fmt, ...)
//	band(a, b, ...), bor(a, b, ...), bnot(a)
//	REG.<name>, IRQ.<name>, BIT.<name>
//
// addr may be a number or a register name such as "CTRL".
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
)

var ErrUnknownRegister = errors.New("unknown register")

var bitNames = map[string]uint32{
	"ENABLE":        core.CTRL_ENABLE,
	"ERR_CNT_CLEAR": core.CTRL_ERR_CNT_CLEAR,
	"IRQ_EN":        core.CTRL_IRQ_EN,
	"RST_CMD":       core.CTRL_RST_CMD,
	"RST_WORK_RX":   core.CTRL_RST_WORK_RX,
	"RST_WORK_TX":   core.CTRL_RST_WORK_TX,
	"FIFO_RST_TX":   core.FIFO_CTRL_RST_TX,
	"FIFO_RST_RX":   core.FIFO_CTRL_RST_RX,
	"FIFO_IRQ_EN":   core.FIFO_CTRL_IRQ_EN,
	"RX_EMPTY":      core.STAT_RX_EMPTY,
	"RX_FULL":       core.STAT_RX_FULL,
	"TX_EMPTY":      core.STAT_TX_EMPTY,
	"TX_FULL":       core.STAT_TX_FULL,
	"IRQ_PEND":      core.STAT_IRQ_PEND,
}

type Engine struct {
	dev  regbus.Device
	out  io.Writer
	L    *lua.LState
	regs map[string]uint32
	// Accesses counts register reads and writes issued by scripts.
	Accesses int
}

func NewEngine(dev regbus.Device, out io.Writer) *Engine {
	e := &Engine{dev: dev, out: out, L: lua.NewState(), regs: core.RegisterNames()}
	e.install()
	return e
}

func (e *Engine) install() {
	L := e.L
	L.SetGlobal("reg_read", L.NewFunction(e.luaRegRead))
	L.SetGlobal("reg_write", L.NewFunction(e.luaRegWrite))
	L.SetGlobal("irq_wait", L.NewFunction(e.luaIRQWait))
	L.SetGlobal("sleep_ms", L.NewFunction(e.luaSleep))
	L.SetGlobal("log", L.NewFunction(e.luaLog))
	L.SetGlobal("band", L.NewFunction(bitOp(func(a, b uint32) uint32 { return a & b })))
	L.SetGlobal("bor", L.NewFunction(bitOp(func(a, b uint32) uint32 { return a | b })))
	L.SetGlobal("bnot", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(^uint32(L.CheckInt64(1))))
		return 1
	}))

	regs := L.NewTable()
	for name, addr := range e.regs {
		L.SetField(regs, name, lua.LNumber(addr))
	}
	L.SetGlobal("REG", regs)

	irqs := L.NewTable()
	for l := core.IRQLine(0); l < core.NUM_IRQ; l++ {
		L.SetField(irqs, strings.ToUpper(strings.ReplaceAll(l.String(), "-", "_")), lua.LNumber(l))
	}
	L.SetGlobal("IRQ", irqs)

	bits := L.NewTable()
	for name, v := range bitNames {
		L.SetField(bits, name, lua.LNumber(v))
	}
	L.SetGlobal("BIT", bits)
}

// Lua 5.1 has no bitwise operators.
func bitOp(op func(a, b uint32) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		acc := uint32(L.CheckInt64(1))
		for i := 2; i <= L.GetTop(); i++ {
			acc = op(acc, uint32(L.CheckInt64(i)))
		}
		L.Push(lua.LNumber(acc))
		return 1
	}
}

func (e *Engine) context() context.Context {
	if ctx := e.L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (e *Engine) addrArg(n int) uint32 {
	v := e.L.CheckAny(n)
	switch v.Type() {
	case lua.LTNumber:
		return uint32(lua.LVAsNumber(v))
	case lua.LTString:
		name := strings.ToUpper(v.String())
		if addr, ok := e.regs[name]; ok {
			return addr
		}
		e.L.RaiseError("%v: %s", ErrUnknownRegister, v.String())
	default:
		e.L.ArgError(n, "register address or name expected")
	}
	return 0
}

func (e *Engine) luaRegRead(L *lua.LState) int {
	addr := e.addrArg(1)
	e.Accesses++
	v, err := e.dev.Read32(addr)
	if err != nil {
		L.RaiseError("reg_read(%#x): %v", addr, err)
		return 0
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (e *Engine) luaRegWrite(L *lua.LState) int {
	addr := e.addrArg(1)
	v := uint32(L.CheckInt64(2))
	e.Accesses++
	if err := e.dev.Write32(addr, v); err != nil {
		L.RaiseError("reg_write(%#x, %#x): %v", addr, v, err)
	}
	return 0
}

func (e *Engine) luaIRQWait(L *lua.LState) int {
	var line core.IRQLine
	switch v := L.CheckAny(1); v.Type() {
	case lua.LTNumber:
		line = core.IRQLine(lua.LVAsNumber(v))
	case lua.LTString:
		l, ok := core.ParseIRQLine(v.String())
		if !ok {
			L.ArgError(1, "unknown irq line "+v.String())
			return 0
		}
		line = l
	default:
		L.ArgError(1, "irq line expected")
		return 0
	}
	if line >= core.NUM_IRQ {
		L.ArgError(1, "irq line out of range")
		return 0
	}
	ms := L.OptInt(2, 1000)
	ctx, cancel := context.WithTimeout(e.context(), time.Duration(ms)*time.Millisecond)
	defer cancel()
	err := e.dev.WaitIRQ(ctx, line)
	switch {
	case err == nil:
		L.Push(lua.LTrue)
	case errors.Is(err, regbus.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		L.Push(lua.LFalse)
	default:
		L.RaiseError("irq_wait(%s): %v", line, err)
		return 0
	}
	return 1
}

func (e *Engine) luaSleep(L *lua.LState) int {
	d := time.Duration(L.CheckInt(1)) * time.Millisecond
	select {
	case <-time.After(d):
	case <-e.context().Done():
		L.RaiseError("sleep_ms: %v", e.context().Err())
	}
	return 0
}

func (e *Engine) luaLog(L *lua.LState) int {
	n := L.GetTop()
	args := make([]interface{}, 0, n)
	for i := 2; i <= n; i++ {
		v := L.Get(i)
		if num, ok := v.(lua.LNumber); ok && float64(num) == float64(int64(num)) {
			args = append(args, int64(num))
			continue
		}
		args = append(args, v.String())
	}
	msg := fmt.Sprintf(L.CheckString(1), args...)
	log.Infof("[script] %s", msg)
	if e.out != nil {
		fmt.Fprintln(e.out, msg)
	}
	return 0
}

func (e *Engine) RunString(ctx context.Context, src string) error {
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()
	return e.L.DoString(src)
}

func (e *Engine) RunFile(ctx context.Context, path string) error {
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()
	log.Infof("Running script %s", path)
	return e.L.DoFile(path)
}

func (e *Engine) Close() {
	e.L.Close()
}
