package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/config"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Broker.Instrument = "FIL-USDT"
	cfg.Broker.Cash = 100
	cfg.Journal.Path = t.TempDir() + "/journal.db"
	cfg.Reconcile.Interval = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestOfflineRun(t *testing.T) {
	cfg := offlineConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Build(ctx, cfg, BuildOptions{Offline: true, MockEvery: time.Millisecond})
	require.NoError(t, err)
	defer app.Close()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.Runner().StrategyStatus().Bars >= 5 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, "dry-run", app.Runner().SystemStatus().Mode)
	require.Eventually(t, func() bool { return app.recon.Last() != nil }, 5*time.Second, time.Millisecond)
	assert.True(t, app.recon.Last().Skipped, "spot is not reconciled")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.NoError(t, app.Close())
}

func TestBuildRejectsUnknownStrategy(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Strategy.Type = "grid"
	_, err := Build(context.Background(), cfg, BuildOptions{Offline: true})
	assert.Error(t, err)
}

func TestBuildLiveNeedsCredentials(t *testing.T) {
	cfg := offlineConfig(t)
	_, err := Build(context.Background(), cfg, BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OKX_API_KEY")
}

func TestDownloadWritesCSV(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v5/market/history-candles", r.URL.Path)
		rows := [][]string{
			{ms(t0.Add(time.Minute)), "2", "3", "1", "2.5", "10", "0", "0", "1"},
			{ms(t0), "1", "2", "0.5", "2", "5", "0", "0", "1"},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "msg": "", "data": rows})
	}))
	defer srv.Close()

	cfg := offlineConfig(t)
	cfg.Exchange.BaseURL = srv.URL

	var buf bytes.Buffer
	require.NoError(t, download(context.Background(), cfg, t0, t0.Add(3*time.Minute), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "datetime,open,high,low,close,volume,openinterest", lines[0])
	assert.Equal(t, "2024-01-01 00:00:00,1,2,0.5,2,5,0", lines[1])
	assert.Equal(t, "2024-01-01 00:01:00,2,3,1,2.5,10,0", lines[2])
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-01T12:30:00Z", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, Execute())
	assert.Equal(t, "okx-exec dev\n", buf.String())
}

func ms(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }
