// Package irqout forwards the core interrupt lines to something outside the process.
package irqout

import (
	"sync"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
)

// Sink is a core.IRQSink that owns host resources.
type Sink interface {
	core.IRQSink
	Close() error
}

// LogSink reports every level change.
type LogSink struct {
	Verbose bool
}

func (ls LogSink) SetIRQ(line core.IRQLine, level bool) {
	if ls.Verbose {
		log.Infof("irq %s -> %v", line, level)
		return
	}
	log.Debugf("irq %s -> %v", line, level)
}

func (ls LogSink) Close() error { return nil }

// MultiSink fans level changes out to several sinks.
type MultiSink struct {
	mu    sync.Mutex
	sinks []core.IRQSink
	state core.IRQLines
}

func NewMultiSink(sinks ...core.IRQSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (ms *MultiSink) Add(s core.IRQSink) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sinks = append(ms.sinks, s)
	for l, lvl := range ms.state {
		if lvl {
			s.SetIRQ(core.IRQLine(l), true)
		}
	}
}

func (ms *MultiSink) SetIRQ(line core.IRQLine, level bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.state[line] = level
	for _, s := range ms.sinks {
		s.SetIRQ(line, level)
	}
}

func (ms *MultiSink) State() core.IRQLines {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.state
}

// Close closes every member that owns resources and returns the first error.
func (ms *MultiSink) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var first error
	for _, s := range ms.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
