// Package monitor counts engine events and raises alerts on drift and on
// dropped bars.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"okx-exec/internal/events"
)

// Monitor watches the bus and feeds Metrics.
type Monitor struct {
	Bus     *events.Bus
	Metrics *Metrics
	AlertFn func(string) // optional; alerts are logged when nil
	Log     *logrus.Entry
}

// Start subscribes and returns immediately. Subscriptions end with ctx.
func (m *Monitor) Start(ctx context.Context) {
	log := m.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "monitor")
	if m.Bus == nil || m.Metrics == nil {
		log.Warn("monitor not fully configured; skipping")
		return
	}
	alert := m.AlertFn
	if alert == nil {
		alert = func(s string) { log.Warn(s) }
	}

	bars, unsubBars := m.Bus.Subscribe(events.EventBar, 64)
	terminal, unsubTerm := m.Bus.Subscribe(events.EventOrderTerminal, 64)
	drift, unsubDrift := m.Bus.Subscribe(events.EventPositionDrift, 16)
	drops, unsubDrops := m.Bus.Subscribe(events.EventFeedDrop, 16)
	go func() {
		defer unsubBars()
		defer unsubTerm()
		defer unsubDrift()
		defer unsubDrops()
		for {
			select {
			case <-ctx.Done():
				return
			case <-bars:
				m.Metrics.IncrementBars()
			case <-terminal:
				m.Metrics.IncrementTerminal()
			case msg := <-drift:
				m.Metrics.IncrementDrift()
				alert(formatAlert("position drift", msg))
			case msg := <-drops:
				if n, ok := msg.(uint64); ok {
					m.Metrics.SetFeedDrops(n)
				}
				alert(formatAlert("feed dropped bars", msg))
			}
		}
	}()
}

func formatAlert(kind string, msg any) string {
	return fmt.Sprintf("[%s] %s: %s", time.Now().Format(time.RFC3339), kind, toString(msg))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case nil:
		return "alert triggered"
	default:
		return fmt.Sprintf("%+v", t)
	}
}
