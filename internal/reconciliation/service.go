// Package reconciliation compares the locally tracked position with the
// exchange's view and reports drift. It never writes to the ledger.
package reconciliation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
	"okx-exec/internal/ledger"
	"okx-exec/pkg/exchanges/common"
)

// PositionSource is the exchange side of the comparison.
type PositionSource interface {
	FetchPositions(ctx context.Context, instruments ...string) ([]common.Position, error)
}

// LocalBook is the local side of the comparison.
type LocalBook interface {
	Instrument() string
	Type() common.InstrumentType
	Position() ledger.Position
}

// Report contains reconciliation results
type Report struct {
	Timestamp time.Time      `json:"timestamp"`
	Diffs     []PositionDiff `json:"diffs"`
	HasDiffs  bool           `json:"has_diffs"`
	Skipped   bool           `json:"skipped,omitempty"` // spot holdings are balances, not positions
}

// PositionDiff represents a position difference
type PositionDiff struct {
	Instrument string    `json:"instrument"`
	LocalSize  float64   `json:"local_size"`
	RemoteSize float64   `json:"remote_size"`
	Difference float64   `json:"difference"` // local minus remote
	CheckedAt  time.Time `json:"checked_at"`
}

// Service handles periodic reconciliation
type Service struct {
	remote    PositionSource
	local     LocalBook
	bus       *events.Bus
	interval  time.Duration
	tolerance float64
	log       *logrus.Entry

	mu   sync.Mutex
	last *Report
}

// NewService creates a reconciliation service. A non-positive tolerance
// defaults to 1e-8.
func NewService(remote PositionSource, local LocalBook, bus *events.Bus, interval time.Duration, tolerance float64, log *logrus.Entry) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	if tolerance <= 0 {
		tolerance = 1e-8
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		remote:    remote,
		local:     local,
		bus:       bus,
		interval:  interval,
		tolerance: tolerance,
		log:       log.WithFields(logrus.Fields{"component": "reconciliation", "instrument": local.Instrument()}),
	}
}

// Start begins periodic reconciliation
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Reconcile(ctx); err != nil {
					s.log.WithError(err).WithField("op", "fetch_positions").Warn("reconciliation failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.WithField("interval", s.interval).Info("reconciliation started")
}

// Reconcile performs one check. Drift is logged and published as
// events.EventPositionDrift.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{Timestamp: time.Now()}
	if s.local.Type() != common.InstrumentSwap {
		report.Skipped = true
		s.store(report)
		return report, nil
	}

	inst := s.local.Instrument()
	remote, err := s.remote.FetchPositions(ctx, inst)
	if err != nil {
		return nil, err
	}
	var remoteSize float64
	for _, p := range remote {
		if p.Instrument == inst {
			remoteSize += p.Size
		}
	}
	local := s.local.Position().Size

	if math.Abs(local-remoteSize) > s.tolerance {
		d := PositionDiff{
			Instrument: inst,
			LocalSize:  local,
			RemoteSize: remoteSize,
			Difference: local - remoteSize,
			CheckedAt:  report.Timestamp,
		}
		report.Diffs = append(report.Diffs, d)
		report.HasDiffs = true
		s.bus.Publish(events.EventPositionDrift, d)
		s.log.WithFields(logrus.Fields{"local": local, "remote": remoteSize}).Warn("position drift")
	}
	s.store(report)
	return report, nil
}

func (s *Service) store(r *Report) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// Last returns the most recent report, or nil before the first check.
func (s *Service) Last() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
