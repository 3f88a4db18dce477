package engine

import "time"

// StrategyStatus represents the current status of the running strategy.
type StrategyStatus struct {
	Name    string `json:"name"`
	Bars    int    `json:"bars"`     // bars processed since start
	LastBar int64  `json:"last_bar"` // open time of the last bar, ms
	Errors  int    `json:"errors"`   // OnBar calls that returned an error
	State   any    `json:"state"`
}

// SystemStatus represents overall system status.
type SystemStatus struct {
	Version    string    `json:"version"`
	Mode       string    `json:"mode"` // live or dry-run
	Exchange   string    `json:"exchange"`
	Instrument string    `json:"instrument"`
	Interval   string    `json:"interval"`
	Sandbox    bool      `json:"sandbox"`
	StartedAt  time.Time `json:"started_at"`
	Uptime     string    `json:"uptime"`
}
