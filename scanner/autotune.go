package scanner

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"unravel/config"
	"unravel/logger"
)

type systemSample struct {
	cpus    int
	totalGB uint64
}

func sampleSystem() systemSample {
	sample := systemSample{cpus: runtime.NumCPU()}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		sample.cpus = n
	} else if err != nil {
		logger.Debugf("Auto-tune CPU count unavailable: %v", err)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sample.totalGB = vm.Total / (1024 * 1024 * 1024)
	} else {
		logger.Debugf("Auto-tune memory size unavailable: %v", err)
	}
	return sample
}

// tunedConcurrency picks the worker count for a nice level. Small machines
// are capped because every worker may hold a large decompression window.
func tunedConcurrency(nice string, sample systemSample) int {
	concurrency := sample.cpus
	switch nice {
	case "low":
		concurrency = 1
	case "medium":
		concurrency = maxInt(1, sample.cpus/2)
	}
	switch {
	case sample.totalGB == 0:
	case sample.totalGB <= 4:
		concurrency = minInt(concurrency, 2)
	case sample.totalGB <= 8:
		concurrency = minInt(concurrency, 4)
	}
	return maxInt(1, concurrency)
}

func applyAutoTune(cfg *config.Config) {
	if cfg.ConcurrencySet {
		return
	}
	sample := sampleSystem()
	cfg.ConcurrencyLevel = tunedConcurrency(cfg.NiceLevel, sample)
	logger.Debugf("Auto-tune: %d CPUs, %d GB memory, %d workers", sample.cpus, sample.totalGB, cfg.ConcurrencyLevel)
}

func adjustConcurrency(cfg *config.Config) {
	if cfg.ConcurrencySet {
		return
	}
	numCPU := runtime.NumCPU()
	switch cfg.NiceLevel {
	case "high":
		cfg.ConcurrencyLevel = numCPU
	case "medium":
		cfg.ConcurrencyLevel = maxInt(1, numCPU/2)
	case "low":
		cfg.ConcurrencyLevel = 1
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
