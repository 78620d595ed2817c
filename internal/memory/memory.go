// Package memory defines memory-pressure levels and the sources that report
// them.
package memory

import (
	"fmt"
	"runtime"
	"strings"
)

// Pressure is a discrete memory-pressure level.
type Pressure uint8

const (
	PressureLow Pressure = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

var pressureNames = [...]string{
	PressureLow:      "low",
	PressureMedium:   "medium",
	PressureHigh:     "high",
	PressureCritical: "critical",
}

// String returns the level's lowercase name.
func (p Pressure) String() string {
	if int(p) < len(pressureNames) {
		return pressureNames[p]
	}
	return fmt.Sprintf("pressure(%d)", uint8(p))
}

// ParsePressure parses a level name. "normal" is accepted for low.
func ParsePressure(s string) (Pressure, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "normal":
		return PressureLow, nil
	case "medium":
		return PressureMedium, nil
	case "high":
		return PressureHigh, nil
	case "critical":
		return PressureCritical, nil
	}
	return PressureLow, fmt.Errorf("memory: unknown pressure level %q", s)
}

// Source reports the current pressure level on demand.
type Source interface {
	Pressure() Pressure
}

// Static is a Source that always reports the same level.
type Static Pressure

// Pressure returns the fixed level.
func (s Static) Pressure() Pressure { return Pressure(s) }

// HeapSource derives a level from live heap usage relative to a budget.
type HeapSource struct {
	// Budget is the heap size in bytes considered fully used. Zero derives
	// a budget from the memory currently obtained from the OS.
	Budget uint64

	// ReadHeap overrides how the live heap is measured.
	ReadHeap func() (alloc, sys uint64)
}

// Levels are the usage fractions at which each level begins.
const (
	mediumUsage   = 0.60
	highUsage     = 0.80
	criticalUsage = 0.95
)

// Pressure samples the heap and maps its usage to a level.
func (h HeapSource) Pressure() Pressure {
	read := h.ReadHeap
	if read == nil {
		read = readMemStats
	}
	alloc, sys := read()
	budget := h.Budget
	if budget == 0 {
		budget = sys * 3 / 4
	}
	if budget == 0 {
		return PressureLow
	}
	return Level(float64(alloc) / float64(budget))
}

// Level maps a usage fraction to a pressure level.
func Level(usage float64) Pressure {
	switch {
	case usage >= criticalUsage:
		return PressureCritical
	case usage >= highUsage:
		return PressureHigh
	case usage >= mediumUsage:
		return PressureMedium
	}
	return PressureLow
}

func readMemStats() (alloc, sys uint64) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc, stats.Sys
}
