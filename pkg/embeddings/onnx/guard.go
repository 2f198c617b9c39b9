package onnx

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// GuardConfig holds the minimum host requirements for the accelerated
// execution provider.
type GuardConfig struct {
	// MinMemoryMB is the minimum total host memory.
	MinMemoryMB int

	// MinCores is the minimum logical CPU count.
	MinCores int

	// AdapterDenylist lists adapter description substrings that force the
	// fallback backend (software rasterizers and similar).
	AdapterDenylist []string
}

// HostInfo describes the host the guard evaluates.
type HostInfo struct {
	MemoryMB           int
	Cores              int
	AdapterDescription string
}

// Decision is the guard's verdict. It is computed once per process and
// reused for every subsequent initialization attempt, including retries
// after a failed model load.
type Decision struct {
	Accelerated bool
	Reason      string
}

// Probe evaluates the host against the guard thresholds. Any single
// failing check forces the fallback backend.
func Probe(cfg GuardConfig, host HostInfo) Decision {
	if host.MemoryMB < cfg.MinMemoryMB {
		return Decision{
			Accelerated: false,
			Reason:      fmt.Sprintf("host memory %dMB below %dMB minimum", host.MemoryMB, cfg.MinMemoryMB),
		}
	}
	if host.Cores < cfg.MinCores {
		return Decision{
			Accelerated: false,
			Reason:      fmt.Sprintf("%d cores below %d minimum", host.Cores, cfg.MinCores),
		}
	}
	desc := strings.ToLower(host.AdapterDescription)
	for _, deny := range cfg.AdapterDenylist {
		if deny != "" && strings.Contains(desc, strings.ToLower(deny)) {
			return Decision{
				Accelerated: false,
				Reason:      fmt.Sprintf("adapter %q is denylisted (%s)", host.AdapterDescription, deny),
			}
		}
	}
	return Decision{Accelerated: true, Reason: "host meets accelerated requirements"}
}

// DetectHost inspects the local machine. The adapter description comes
// from the caller since ONNX Runtime does not expose it portably.
func DetectHost(adapterDescription string) HostInfo {
	return HostInfo{
		MemoryMB:           totalMemoryMB(),
		Cores:              runtime.NumCPU(),
		AdapterDescription: adapterDescription,
	}
}

// totalMemoryMB reads MemTotal from /proc/meminfo. Returns 0 when the
// file is unreadable, which fails the memory check and forces fallback.
func totalMemoryMB() int {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}
