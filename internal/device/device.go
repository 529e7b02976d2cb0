// Package device reports accelerator memory telemetry for health and
// metrics queries. Probing is pull-based: every call re-runs the query so
// readers always see current figures.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryInfo describes one device's memory in megabytes.
type MemoryInfo struct {
	Available bool
	Name      string
	TotalMB   int64
	UsedMB    int64
	FreeMB    int64
}

// Prober answers memory queries for the serving device.
type Prober interface {
	Probe(ctx context.Context) MemoryInfo
}

const probeTimeout = 2 * time.Second

// NvidiaSMI shells out to nvidia-smi for the first visible GPU.
type NvidiaSMI struct {
	path string
}

// NewNvidiaSMI locates nvidia-smi on PATH. The returned prober reports
// Available=false on hosts without the binary.
func NewNvidiaSMI() *NvidiaSMI {
	p, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return &NvidiaSMI{}
	}
	return &NvidiaSMI{path: p}
}

func (n *NvidiaSMI) Probe(ctx context.Context) MemoryInfo {
	if n.path == "" {
		return MemoryInfo{}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, n.path,
		"--query-gpu=name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return MemoryInfo{}
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	info, err := parseQueryLine(line)
	if err != nil {
		return MemoryInfo{}
	}
	return info
}

// parseQueryLine parses one "name, total, used, free" CSV row with
// nounits megabyte values.
func parseQueryLine(line string) (MemoryInfo, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return MemoryInfo{}, fmt.Errorf("unexpected nvidia-smi row: %q", line)
	}
	name := strings.TrimSpace(fields[0])
	nums := make([]int64, 3)
	for i, f := range fields[1:] {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return MemoryInfo{}, fmt.Errorf("parse %q: %w", f, err)
		}
		nums[i] = v
	}
	return MemoryInfo{
		Available: true,
		Name:      name,
		TotalMB:   nums[0],
		UsedMB:    nums[1],
		FreeMB:    nums[2],
	}, nil
}

// HostFallback probes the GPU first and falls back to host RAM so health
// payloads stay populated on CPU-only hosts.
type HostFallback struct {
	GPU Prober
}

// NewProber returns the default prober: nvidia-smi with host fallback.
func NewProber() Prober {
	return &HostFallback{GPU: NewNvidiaSMI()}
}

func (h *HostFallback) Probe(ctx context.Context) MemoryInfo {
	if info := h.GPU.Probe(ctx); info.Available {
		return info
	}
	return HostMemory()
}

// HostMemory reports host RAM via gopsutil in the same MB units.
func HostMemory() MemoryInfo {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryInfo{}
	}
	const mb = 1024 * 1024
	return MemoryInfo{
		Available: true,
		Name:      "host",
		TotalMB:   int64(vm.Total / mb),
		UsedMB:    int64(vm.Used / mb),
		FreeMB:    int64(vm.Available / mb),
	}
}
