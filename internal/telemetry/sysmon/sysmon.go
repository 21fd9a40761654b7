// Package sysmon periodically samples the process's own CPU and memory
// footprint, grounded on the reference codebase's monitor.CollectSystemMetrics
// (same gopsutil calls, same fallback path when per-process CPU percent is
// unavailable).
package sysmon

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
)

// Sample is a single point-in-time resource reading.
type Sample struct {
	Timestamp     time.Time
	CPUPercent    float64
	MemoryMB      float64
	MemoryPercent float64
}

// Sampler periodically collects Samples and hands them to a callback.
type Sampler struct {
	interval time.Duration
	log      *logging.Logger
	proc     *process.Process
}

// New builds a Sampler for the current process.
func New(interval time.Duration, log *logging.Logger) (*Sampler, error) {
	p, err := process.NewProcess(int32(currentPID()))
	if err != nil {
		return nil, fmt.Errorf("sysmon: resolve current process: %w", err)
	}
	return &Sampler{interval: interval, log: log, proc: p}, nil
}

// Collect takes a single Sample.
func (s *Sampler) Collect() (Sample, error) {
	cpuPercent, err := s.proc.CPUPercent()
	if err != nil {
		cpuPercent, err = systemCPUPercent()
		if err != nil {
			return Sample{}, fmt.Errorf("sysmon: cpu percent: %w", err)
		}
	}

	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("sysmon: memory info: %w", err)
	}
	memoryMB := float64(memInfo.RSS) / 1024 / 1024

	var memoryPercent float64
	if vmem, err := mem.VirtualMemory(); err == nil && vmem.Total > 0 {
		memoryPercent = float64(memInfo.RSS) / float64(vmem.Total) * 100
	}

	return Sample{
		Timestamp:     time.Now(),
		CPUPercent:    cpuPercent,
		MemoryMB:      memoryMB,
		MemoryPercent: memoryPercent,
	}, nil
}

// Run samples on the configured interval until ctx is cancelled, invoking
// onSample for each successful reading.
func (s *Sampler) Run(ctx context.Context, onSample func(Sample)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := s.Collect()
			if err != nil {
				if s.log != nil {
					s.log.Warn("sysmon: sample failed", "error", err.Error())
				}
				continue
			}
			onSample(sample)
		}
	}
}

func systemCPUPercent() (float64, error) {
	percentages, err := cpu.Percent(time.Second, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("sysmon: no cpu percentage reported")
	}
	return percentages[0], nil
}
