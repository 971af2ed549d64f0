package system

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"eval_fpgaio/core"
	"eval_fpgaio/device/uio"
	"eval_fpgaio/log"
	"eval_fpgaio/version"
)

const MAX_CHAINS = 16

// ChainInfo is what the host exposes for one hash chain I/O block.
type ChainInfo struct {
	Index    int
	Complete bool
	Devices  map[string]string
	Missing  []string
}

// SystemInformation identifies the host and the I/O blocks it carries.
type SystemInformation struct {
	Hostname   string
	Arch       string
	Model      string
	ChainCount int
	Chains     []ChainInfo
}

var (
	mu            sync.Mutex
	cachedSysinfo *SystemInformation
)

func chainParts() []string {
	parts := []string{"mem"}
	for l := core.IRQLine(0); l < core.NUM_IRQ; l++ {
		parts = append(parts, l.String())
	}
	return parts
}

func scanChains() []ChainInfo {
	devs, err := uio.List()
	if err != nil {
		log.Debugf("no uio devices: %v", err)
		return nil
	}
	var chains []ChainInfo
	for idx := 0; idx < MAX_CHAINS; idx++ {
		ci := ChainInfo{Index: idx, Devices: map[string]string{}}
		for _, part := range chainParts() {
			if path, ok := devs[fmt.Sprintf("chain%d-%s", idx, part)]; ok {
				ci.Devices[part] = path
			} else {
				ci.Missing = append(ci.Missing, part)
			}
		}
		if len(ci.Devices) == 0 {
			continue
		}
		ci.Complete = len(ci.Missing) == 0
		if !ci.Complete {
			log.Infof("chain %d is missing uio devices %v", idx, ci.Missing)
		}
		chains = append(chains, ci)
	}
	return chains
}

// GetSystemInfo scans the host once; later calls return the cached copy.
func GetSystemInfo() (*SystemInformation, error) {
	mu.Lock()
	defer mu.Unlock()
	if cachedSysinfo != nil {
		si := *cachedSysinfo
		return &si, nil
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}
	si := SystemInformation{
		Hostname: host,
		Arch:     runtime.GOARCH,
		Model:    version.Model,
		Chains:   scanChains(),
	}
	for _, c := range si.Chains {
		if c.Complete {
			si.ChainCount++
		}
	}
	log.Debugf("sysInfo: %+v", si)
	cachedSysinfo = &si
	cp := si
	return &cp, nil
}

// Rescan drops the cached inventory.
func Rescan() {
	mu.Lock()
	cachedSysinfo = nil
	mu.Unlock()
}
