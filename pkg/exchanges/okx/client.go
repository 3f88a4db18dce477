package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"okx-exec/pkg/exchanges/common"
)

const defaultBaseURL = "https://www.okx.com"

// Config holds OKX v5 credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	Sandbox    bool // demo trading
	BaseURL    string
	Timeout    time.Duration
}

// Client is an OKX v5 REST gateway for spot and perpetual swaps.
type Client struct {
	cfg         Config
	http        *resty.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	log         *logrus.Entry
}

// APIError is a non-zero envelope code.
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string { return fmt.Sprintf("okx error %s: %s", e.Code, e.Msg) }

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewClient creates a new OKX client.
func NewClient(cfg Config, log *logrus.Entry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Client{
		cfg: cfg,
		log: log.WithField("component", "okx"),
	}
	c.http = resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// only reads are retried; a duplicated POST could double an order
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	c.timeSync = common.NewTimeSync(c.ServerTime, c.log)

	// per-endpoint limits from the OKX v5 docs (requests per 2s)
	c.rateLimiter = common.NewRateLimiter(10, 2*time.Second)
	c.rateLimiter.SetRule(groupPlace, 60, 2*time.Second)
	c.rateLimiter.SetRule(groupCancel, 60, 2*time.Second)
	c.rateLimiter.SetRule(groupOrder, 60, 2*time.Second)
	c.rateLimiter.SetRule(groupCandles, 20, 2*time.Second)
	return c
}

const (
	groupPlace     = "place"
	groupCancel    = "cancel"
	groupOrder     = "order"
	groupPositions = "positions"
	groupPublic    = "public"
	groupCandles   = "candles"
	groupLeverage  = "leverage"
)

// StartTimeSync keeps request timestamps aligned with the server clock.
func (c *Client) StartTimeSync(ctx context.Context) { c.timeSync.Start(ctx) }

func (c *Client) now() time.Time {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return time.UnixMilli(c.timeSync.Now())
	}
	return time.Now()
}

// sign returns base64(HMAC-SHA256(secret, ts+method+path+body)).
func sign(secret, ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, group, method, path string, query url.Values, body any, signed bool, out any) error {
	if signed && (c.cfg.APIKey == "" || c.cfg.APISecret == "" || c.cfg.Passphrase == "") {
		return errors.New("okx: API key, secret and passphrase required")
	}
	if err := c.rateLimiter.Wait(ctx, group); err != nil {
		return err
	}

	target := path
	if len(query) > 0 {
		target = path + "?" + query.Encode()
	}
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "okx: marshal body")
		}
		payload = string(b)
	}

	r := c.http.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if payload != "" {
		r.SetBody(payload)
	}
	if signed {
		ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
		r.SetHeader("OK-ACCESS-KEY", c.cfg.APIKey)
		r.SetHeader("OK-ACCESS-SIGN", sign(c.cfg.APISecret, ts, method, target, payload))
		r.SetHeader("OK-ACCESS-TIMESTAMP", ts)
		r.SetHeader("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	}
	if c.cfg.Sandbox {
		r.SetHeader("x-simulated-trading", "1")
	}

	resp, err := r.Execute(method, target)
	if err != nil {
		return errors.Wrapf(err, "okx %s %s", method, path)
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.Errorf("okx %s %s: status %d: %s", method, path, resp.StatusCode(), truncate(resp.String(), 200))
	}
	if env.Code != "0" {
		// code 1/2 carry per-item sCode in data; let the caller inspect it
		if out != nil && (env.Code == "1" || env.Code == "2") && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err == nil {
				return &APIError{Code: env.Code, Msg: env.Msg}
			}
		}
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(env.Data, out), "okx %s %s: decode data", method, path)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ServerTime returns the OKX clock in ms.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var rows []struct {
		Ts string `json:"ts"`
	}
	if err := c.do(ctx, groupPublic, http.MethodGet, "/api/v5/public/time", nil, nil, false, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("okx: empty time response")
	}
	return toInt64(rows[0].Ts), nil
}

var _ common.Gateway = (*Client)(nil)
var _ common.CandleSource = (*Client)(nil)
