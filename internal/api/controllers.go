package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type listJournalQuery struct {
	Instrument string `form:"instrument"`
	Limit      int    `form:"limit"`
}

func (q *listJournalQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	q.Instrument = strings.ToUpper(strings.TrimSpace(q.Instrument))
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	st := s.Engine.SystemStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":      st,
		"server_time": time.Now().UTC(),
	})
}

func (s *Server) getAccount(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Account())
}

// getOpenOrders lists orders still working on the exchange.
func (s *Server) getOpenOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.Engine.OpenOrders()})
}

func (s *Server) getStrategy(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.StrategyStatus())
}

func (s *Server) getJournalOrders(c *gin.Context) {
	if s.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal not enabled")
		return
	}
	var q listJournalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	q.normalize()

	rows, err := s.Journal.Orders(c.Request.Context(), q.Instrument, q.Limit)
	if err != nil {
		s.log.WithError(err).Error("list journal orders")
		respondError(c, http.StatusInternalServerError, "JOURNAL_ERROR", "failed to read journal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows, "count": len(rows)})
}

func (s *Server) getJournalDrift(c *gin.Context) {
	if s.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal not enabled")
		return
	}
	var q listJournalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	q.normalize()

	rows, err := s.Journal.Drift(c.Request.Context(), q.Limit)
	if err != nil {
		s.log.WithError(err).Error("list drift")
		respondError(c, http.StatusInternalServerError, "JOURNAL_ERROR", "failed to read journal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"drift": rows, "count": len(rows)})
}

func (s *Server) getReconciliation(c *gin.Context) {
	if s.Recon == nil {
		respondError(c, http.StatusServiceUnavailable, "RECONCILE_DISABLED", "reconciliation not enabled")
		return
	}
	rep := s.Recon.Last()
	if rep == nil {
		respondError(c, http.StatusNotFound, "NO_REPORT", "no reconciliation has run yet")
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	resp := gin.H{"engine": s.Metrics.GetSnapshot()}
	if s.Journal != nil {
		resp["journal"] = s.Journal.Metrics()
	}
	c.JSON(http.StatusOK, resp)
}

// getPromMetrics returns a minimal Prometheus text exposition of key metrics.
func (s *Server) getPromMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.String(http.StatusServiceUnavailable, "# metrics not available\n")
		return
	}
	snap := s.Metrics.GetSnapshot()
	acct := s.Engine.Account()

	var b strings.Builder
	// Counters
	fmt.Fprintf(&b, "okx_exec_bars_total %d\n", snap.Bars)
	fmt.Fprintf(&b, "okx_exec_terminal_orders_total %d\n", snap.TerminalOrders)
	fmt.Fprintf(&b, "okx_exec_position_drift_total %d\n", snap.Drifts)
	fmt.Fprintf(&b, "okx_exec_feed_dropped_bars_total %d\n", snap.FeedDrops)
	fmt.Fprintf(&b, "okx_exec_strategy_errors_total %d\n", snap.Errors)
	fmt.Fprintf(&b, "okx_exec_api_requests_total %d\n", snap.Requests)

	// Gauges
	fmt.Fprintf(&b, "okx_exec_cash %g\n", acct.Cash)
	fmt.Fprintf(&b, "okx_exec_account_value %g\n", acct.Value)
	fmt.Fprintf(&b, "okx_exec_position_size %g\n", acct.Position.Size)
	fmt.Fprintf(&b, "okx_exec_active_orders %d\n", acct.ActiveOrders)
	fmt.Fprintf(&b, "okx_exec_goroutines %d\n", snap.GoroutineCount)

	// Latency (ms)
	fmt.Fprintf(&b, "okx_exec_step_latency_p95_ms %g\n", snap.StepLatency.P95)
	fmt.Fprintf(&b, "okx_exec_step_latency_p99_ms %g\n", snap.StepLatency.P99)
	fmt.Fprintf(&b, "okx_exec_api_latency_p95_ms %g\n", snap.RequestLatency.P95)

	if s.Journal != nil {
		jm := s.Journal.Metrics()
		fmt.Fprintf(&b, "okx_exec_journal_writes_total %d\n", jm.TotalWrites)
		fmt.Fprintf(&b, "okx_exec_journal_errors_total %d\n", jm.TotalErrors)
	}

	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(b.String()))
}
