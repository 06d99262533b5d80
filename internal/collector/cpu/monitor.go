// Package cpu reads host CPU utilization.
package cpu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// PercentFunc matches cpu.PercentWithContext.
type PercentFunc func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)

// Monitor reports overall CPU utilization since its previous call, the same
// way a zero-interval cpu.Percent call does.
type Monitor struct {
	percent PercentFunc
}

func NewMonitor() *Monitor {
	return &Monitor{percent: cpu.PercentWithContext}
}

// NewMonitorWith is NewMonitor with an injected reader.
func NewMonitorWith(percent PercentFunc) *Monitor {
	return &Monitor{percent: percent}
}

// Sample returns the current load in percent, clamped to [0, 100] and rounded
// to one decimal place.
func (m *Monitor) Sample(ctx context.Context) (float64, error) {
	values, err := m.percent(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("read cpu percent: %w", err)
	}
	if len(values) == 0 {
		return 0, errors.New("read cpu percent: no values returned")
	}

	return Round1(clamp(values[0])), nil
}

// Round1 rounds to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
