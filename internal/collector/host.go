// Package collector samples the local host's resource usage.
package collector

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"cloudscale/internal/models"
)

// Stats is the subset of gopsutil the host sampler reads. Tests swap it out.
type Stats interface {
	CPUPercent(ctx context.Context, interval time.Duration) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
	NetworkBytes(ctx context.Context) (recv, sent uint64, err error)
}

type gopsutilStats struct{}

func (gopsutilStats) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no cpu percentage reported")
	}
	return pcts[0], nil
}

func (gopsutilStats) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (gopsutilStats) DiskPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

func (gopsutilStats) NetworkBytes(ctx context.Context) (uint64, uint64, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	if len(counters) == 0 {
		return 0, 0, nil
	}
	return counters[0].BytesRecv, counters[0].BytesSent, nil
}

// Host samples cpu, memory, disk and network usage of the machine it runs on.
type Host struct {
	resourceID string
	diskPath   string
	cpuWindow  time.Duration
	stats      Stats
	now        func() time.Time

	mu       sync.Mutex
	lastRecv uint64
	lastSent uint64
	lastAt   time.Time
}

// NewHost creates a sampler. An empty resourceID falls back to the hostname.
func NewHost(resourceID, diskPath string, cpuWindow time.Duration) *Host {
	if resourceID == "" {
		resourceID, _ = os.Hostname()
		if resourceID == "" {
			resourceID = "system"
		}
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &Host{
		resourceID: resourceID,
		diskPath:   diskPath,
		cpuWindow:  cpuWindow,
		stats:      gopsutilStats{},
		now:        time.Now,
	}
}

// WithStats swaps the stats provider.
func (h *Host) WithStats(s Stats) *Host {
	h.stats = s
	return h
}

// Latest takes one sample. Network rates are bytes/sec since the previous
// call and zero on the first.
func (h *Host) Latest(ctx context.Context) (*models.Metrics, error) {
	cpuPct, err := h.stats.CPUPercent(ctx, h.cpuWindow)
	if err != nil {
		return nil, fmt.Errorf("cpu: %w", err)
	}
	memPct, err := h.stats.MemoryPercent(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	diskPct, err := h.stats.DiskPercent(ctx, h.diskPath)
	if err != nil {
		return nil, fmt.Errorf("disk %s: %w", h.diskPath, err)
	}
	recv, sent, err := h.stats.NetworkBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	now := h.now()
	in, out := h.rates(recv, sent, now)

	return &models.Metrics{
		ResourceID:   h.resourceID,
		ResourceType: "host",
		CPUUsage:     cpuPct,
		MemoryUsage:  memPct,
		DiskUsage:    diskPct,
		NetworkIn:    in,
		NetworkOut:   out,
		Timestamp:    now.UTC(),
	}, nil
}

func (h *Host) rates(recv, sent uint64, now time.Time) (in, out float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lastAt.IsZero() {
		// counters reset on interface restart
		if elapsed := now.Sub(h.lastAt).Seconds(); elapsed > 0 && recv >= h.lastRecv && sent >= h.lastSent {
			in = float64(recv-h.lastRecv) / elapsed
			out = float64(sent-h.lastSent) / elapsed
		}
	}

	h.lastRecv, h.lastSent, h.lastAt = recv, sent, now
	return in, out
}

// Close is a no-op.
func (h *Host) Close() error { return nil }
