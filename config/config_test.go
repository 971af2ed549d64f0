package config

import (
	"os"
	"path/filepath"
	"testing"

	"periph.io/x/conn/v3/physic"

	"eval_fpgaio/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if !cfg.Valid {
		t.Fatalf("default config invalid: %s", cfg.Reason)
	}
	if cfg.ClockFrequency() != 50*physic.MegaHertz {
		t.Fatalf("got %v, expected 50MHz", cfg.ClockFrequency())
	}
	cc := cfg.Core.ToCore()
	if cc.CmdRxDepth != core.DefaultConfig().CmdRxDepth || cc.VersionWord == 0 {
		t.Fatalf("core config %+v", cc)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *BoardConfig)
	}{
		{"backend", func(c *BoardConfig) { c.Backend = "pcie" }},
		{"link", func(c *BoardConfig) { c.SimLink = "radio" }},
		{"pins", func(c *BoardConfig) { c.SimLink = LINK_PINS; c.TxPin = "GPIO1" }},
		{"chain", func(c *BoardConfig) { c.Backend = BACKEND_UIO; c.ChainIdx = 16 }},
		{"remote", func(c *BoardConfig) { c.Backend = BACKEND_REMOTE }},
		{"clock", func(c *BoardConfig) { c.Clock = "fast" }},
		{"baud", func(c *BoardConfig) { c.BaudRate = 0 }},
		{"midstates", func(c *BoardConfig) { c.Midstates = 3 }},
		{"irq", func(c *BoardConfig) { c.IrqOffsets = []int{1, 2, 3, 4} }},
		{"frame", func(c *BoardConfig) { c.Core.RespFrameLen = 1000 }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mod(cfg)
		cfg.Parse()
		if cfg.Valid {
			t.Fatalf("%s: expected invalid config", tt.name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	src := `{"Backend": "UIO", "ChainIdx": 2, "Clock": "100MHz", "Midstates": 4,
		"IrqOffsets": [5], "Core": {"WorkTxDepth": 4096}}`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BACKEND_UIO || cfg.ChainIdx != 2 || cfg.Listen != DEFAULT_LISTEN {
		t.Fatalf("loaded %+v", cfg)
	}
	if cfg.ClockFrequency() != 100*physic.MegaHertz {
		t.Fatalf("clock %v", cfg.ClockFrequency())
	}
	if got := cfg.Core.ToCore().WorkTxDepth; got != 4096 {
		t.Fatalf("got %d, expected 4096", got)
	}
	if got := IrqOffsetArray(cfg.IrqOffsets); got != [core.NUM_IRQ]int{5, -1, -1} {
		t.Fatalf("irq offsets %v", got)
	}

	if err := os.WriteFile(path, []byte(`{"Backend": "remote"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for remote without address")
	}
}

func TestEqual(t *testing.T) {
	a, b := Default(), Default()
	if !a.Equal(b) {
		t.Fatalf("defaults differ")
	}
	b.IrqSysfsPins = []int{10}
	if a.Equal(b) {
		t.Fatalf("irq pins ignored by Equal")
	}
	b = Default()
	b.Core.CmdTxDepth = 8
	if a.Equal(b) {
		t.Fatalf("core config ignored by Equal")
	}
}
