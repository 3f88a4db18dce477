package common

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeSync tracks the offset between the local clock and an exchange clock.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	offset        int64 // ms, server - local
	lastSync      time.Time
	syncInterval  time.Duration
	log           *logrus.Entry
	mu            sync.RWMutex
}

// NewTimeSync creates a new time synchronization manager.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), log *logrus.Entry) *TimeSync {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TimeSync{
		getServerTime: getServerTime,
		syncInterval:  30 * time.Minute,
		log:           log.WithField("component", "timesync"),
	}
}

// Start syncs once and then every sync interval until ctx is done.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		ts.log.WithError(err).Warn("initial time sync failed")
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					ts.log.WithError(err).Warn("time sync failed")
				}
			}
		}
	}()
}

// Sync synchronizes with server time.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	// assume symmetric latency
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	offset := ts.offset
	ts.mu.Unlock()

	ts.log.WithFields(logrus.Fields{"offset_ms": offset, "server": serverTime}).Debug("time synced")
	return nil
}

// Now returns current time in ms adjusted for server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current time offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
