package okx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/exchanges/common"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:     "key",
		APISecret:  "secret",
		Passphrase: "pass",
		Sandbox:    true,
		BaseURL:    srv.URL,
	}, nil)
}

func writeData(w http.ResponseWriter, code string, data any) {
	b, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": "", "data": json.RawMessage(b)})
}

func TestSign(t *testing.T) {
	// base64(HMAC-SHA256("secret", "2020-12-08T09:08:57.715ZGET/api/v5/account/balance?ccy=BTC"))
	got := sign("secret", "2020-12-08T09:08:57.715Z", "GET", "/api/v5/account/balance?ccy=BTC", "")
	assert.Equal(t, "wpDvCwYCprcMQsQkxWJiWy+YADoQE4ep+OEKKLimMoY=", got)
	assert.NotEqual(t, got, sign("other", "2020-12-08T09:08:57.715Z", "GET", "/api/v5/account/balance?ccy=BTC", ""))
}

func TestCreateOrderSignsAndSendsPayload(t *testing.T) {
	var body map[string]any
	var headers http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v5/trade/order", r.URL.Path)
		headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		assert.Equal(t, sign("secret", ts, "POST", "/api/v5/trade/order", string(raw)), r.Header.Get("OK-ACCESS-SIGN"))
		writeData(w, "0", []map[string]string{{"ordId": "123", "clOrdId": "abc", "sCode": "0"}})
	})

	h, err := c.CreateOrder(context.Background(), common.OrderRequest{
		Instrument: "FIL-USDT-SWAP",
		Type:       common.InstrumentSwap,
		Side:       common.SideBuy,
		Kind:       common.KindLimit,
		Size:       decimal.RequireFromString("10"),
		Price:      decimal.RequireFromString("5.123"),
		ClientID:   "abc",
		MarginMode: common.MarginIsolated,
	})
	require.NoError(t, err)
	assert.Equal(t, "123", h.ID)
	assert.Equal(t, "1", headers.Get("x-simulated-trading"))
	assert.Equal(t, "key", headers.Get("OK-ACCESS-KEY"))
	assert.Equal(t, "isolated", body["tdMode"])
	assert.Equal(t, "limit", body["ordType"])
	assert.Equal(t, "5.123", body["px"])
	assert.Equal(t, "10", body["sz"])
}

func TestCreateOrderRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, "1", []map[string]string{{"ordId": "", "sCode": "51008", "sMsg": "insufficient balance"}})
	})
	_, err := c.CreateOrder(context.Background(), common.OrderRequest{
		Instrument: "FIL-USDT", Type: common.InstrumentSpot, Side: common.SideBuy,
		Kind: common.KindMarket, Size: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOrderRejected)
	var ge *common.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "create_order", ge.Op)
}

func TestCreateOrderStopKindUnsupported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.CreateOrder(context.Background(), common.OrderRequest{
		Instrument: "FIL-USDT", Kind: common.KindStop, Side: common.SideSell, Size: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, common.ErrUnsupportedKind)
}

func TestFetchOrderMapsState(t *testing.T) {
	tests := []struct {
		state string
		want  common.RemoteStatus
	}{
		{"live", common.RemoteOpen},
		{"partially_filled", common.RemoteOpen},
		{"filled", common.RemoteClosed},
		{"canceled", common.RemoteCanceled},
		{"mmp_canceled", common.RemoteCanceled},
		{"weird", common.RemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "FIL-USDT", r.URL.Query().Get("instId"))
				assert.Equal(t, "9", r.URL.Query().Get("ordId"))
				writeData(w, "0", []map[string]string{{
					"instId": "FIL-USDT", "ordId": "9", "state": tt.state, "side": "buy",
					"px": "5", "avgPx": "4.9", "accFillSz": "10", "fee": "-0.1", "feeCcy": "FIL",
				}})
			})
			snap, err := c.FetchOrder(context.Background(), "FIL-USDT", "9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Status)
			assert.Equal(t, 4.9, snap.Average)
			assert.Equal(t, 10.0, snap.Filled)
			assert.InDelta(t, 0.1, snap.Fee.Cost, 1e-12)
		})
	}
}

func TestAPIErrorIsGatewayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, "50111", []any{})
	})
	_, err := c.FetchOrder(context.Background(), "FIL-USDT", "1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "50111", apiErr.Code)
	assert.NotErrorIs(t, err, common.ErrOrderRejected)
}

func TestLoadMarketsAndLimits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/public/instruments":
			assert.Equal(t, "SWAP", r.URL.Query().Get("instType"))
			writeData(w, "0", []map[string]string{{
				"instId": "FIL-USDT-SWAP", "uly": "FIL-USDT", "tickSz": "0.001", "lotSz": "1", "ctVal": "0.1",
			}})
		case "/api/v5/public/price-limit":
			writeData(w, "0", []map[string]string{{"buyLmt": "5.5", "sellLmt": "4.5"}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	markets, err := c.LoadMarkets(context.Background(), common.InstrumentSwap)
	require.NoError(t, err)
	m := markets["FIL-USDT-SWAP"]
	assert.Equal(t, "FIL", m.Base)
	assert.Equal(t, "USDT", m.Quote)
	assert.Equal(t, int32(-3), m.PriceTick.Exponent())
	assert.Equal(t, 0.1, m.ContractSize)

	lim, err := c.FetchPriceLimits(context.Background(), "FIL-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, common.PriceLimit{Buy: 5.5, Sell: 4.5}, lim)
}

func TestFetchCandlesAscending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1H", q.Get("bar"))
		assert.Equal(t, "999", q.Get("before"))
		assert.Equal(t, "7201000", q.Get("after"))
		writeData(w, "0", [][]string{
			{"3601000", "2", "3", "1", "2.5", "10", "0", "0", "1"},
			{"1000", "1", "2", "0.5", "2", "5", "0", "0", "1"},
		})
	})
	bars, err := c.FetchCandles(context.Background(), "FIL-USDT", "1h", 1000, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1000), bars[0].Timestamp)
	assert.Equal(t, int64(3601000), bars[1].Timestamp)
	assert.Equal(t, 2.5, bars[1].Close)
}

func TestParseCandleConfirm(t *testing.T) {
	k, err := ParseCandle([]string{"1", "1", "1", "1", "1", "1", "0", "0", "0"})
	require.NoError(t, err)
	assert.False(t, k.Confirmed)

	_, err = ParseCandle([]string{"x", "1", "1", "1", "1", "1"})
	assert.Error(t, err)
}

func TestBar(t *testing.T) {
	for in, want := range map[string]string{"1m": "1m", "4h": "4H", "1d": "1D", "1H": "1H"} {
		got, err := Bar(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
