package dvfs

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// DefaultSampleInterval is used when a Sampler is given no interval.
const DefaultSampleInterval = 100 * time.Millisecond

// UtilSource reports load as a percentage in [0, 100].
type UtilSource interface {
	Percent(ctx context.Context) (float64, error)
}

// Notifier receives scaled utilisation samples.
type Notifier interface {
	Notify(util int)
}

// CPUSource reads overall CPU load through gopsutil.
type CPUSource struct{}

// Percent implements UtilSource. It reports the load since the previous
// call.
func (CPUSource) Percent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu percent: %w", err)
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

// Scale converts a percentage to the 0..255 utilisation scale.
func Scale(pct float64) int {
	switch {
	case pct <= 0:
		return 0
	case pct >= 100:
		return MaxUtilisation
	}
	return int(pct * MaxUtilisation / 100)
}

// Sampler polls a UtilSource and feeds a Notifier.
type Sampler struct {
	src      UtilSource
	target   Notifier
	interval time.Duration
	logger   Logger
}

// NewSampler creates a sampler. A non-positive interval selects
// DefaultSampleInterval.
func NewSampler(src UtilSource, target Notifier, interval time.Duration, logger Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Sampler{src: src, target: target, interval: interval, logger: logger}
}

// Run samples every interval until ctx is cancelled. Read errors are
// logged and the sample is skipped.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pct, err := s.src.Percent(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("utilisation sample failed", "error", err)
				continue
			}
			s.target.Notify(Scale(pct))
		}
	}
}
