package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"okx-exec/pkg/exchanges/common"
)

type instrumentRow struct {
	InstID   string `json:"instId"`
	InstType string `json:"instType"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	Uly      string `json:"uly"`
	SettleCc string `json:"settleCcy"`
	TickSz   string `json:"tickSz"`
	LotSz    string `json:"lotSz"`
	CtVal    string `json:"ctVal"`
}

// LoadMarkets returns precision metadata for every instrument of typ.
func (c *Client) LoadMarkets(ctx context.Context, typ common.InstrumentType) (map[string]common.Market, error) {
	q := url.Values{}
	q.Set("instType", string(typ))
	var rows []instrumentRow
	if err := c.do(ctx, groupPublic, http.MethodGet, "/api/v5/public/instruments", q, nil, false, &rows); err != nil {
		return nil, common.WrapErr("load_markets", string(typ), "", err)
	}
	out := make(map[string]common.Market, len(rows))
	for _, r := range rows {
		tick, err := decimal.NewFromString(r.TickSz)
		if err != nil {
			c.log.WithField("instrument", r.InstID).Debug("skip instrument without tick size")
			continue
		}
		lot, err := decimal.NewFromString(r.LotSz)
		if err != nil {
			c.log.WithField("instrument", r.InstID).Debug("skip instrument without lot size")
			continue
		}
		m := common.Market{
			ID:           r.InstID,
			Type:         typ,
			Base:         r.BaseCcy,
			Quote:        r.QuoteCcy,
			PriceTick:    tick,
			AmountStep:   lot,
			ContractSize: toFloat(r.CtVal),
		}
		if m.Base == "" && r.Uly != "" {
			if parts := strings.SplitN(r.Uly, "-", 2); len(parts) == 2 {
				m.Base, m.Quote = parts[0], parts[1]
			}
		}
		out[r.InstID] = m
	}
	return out, nil
}

// FetchPriceLimits returns the current buy/sell price band.
func (c *Client) FetchPriceLimits(ctx context.Context, instrument string) (common.PriceLimit, error) {
	q := url.Values{}
	q.Set("instId", instrument)
	var rows []struct {
		BuyLmt  string `json:"buyLmt"`
		SellLmt string `json:"sellLmt"`
	}
	if err := c.do(ctx, groupPublic, http.MethodGet, "/api/v5/public/price-limit", q, nil, false, &rows); err != nil {
		return common.PriceLimit{}, common.WrapErr("fetch_price_limits", instrument, "", err)
	}
	if len(rows) == 0 {
		return common.PriceLimit{}, common.WrapErr("fetch_price_limits", instrument, "", errors.New("empty response"))
	}
	return common.PriceLimit{Buy: toFloat(rows[0].BuyLmt), Sell: toFloat(rows[0].SellLmt)}, nil
}

// maxCandlesPerPage is the history-candles page size cap.
const maxCandlesPerPage = 100

// FetchCandles returns up to limit bars starting at since (ms), ascending.
func (c *Client) FetchCandles(ctx context.Context, instrument, interval string, since int64, limit int) ([]common.Candle, error) {
	bar, err := Bar(interval)
	if err != nil {
		return nil, err
	}
	step, err := common.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxCandlesPerPage {
		limit = maxCandlesPerPage
	}

	// before/after are exclusive: before returns newer records, after older
	q := url.Values{}
	q.Set("instId", instrument)
	q.Set("bar", bar)
	q.Set("before", strconv.FormatInt(since-1, 10))
	q.Set("after", strconv.FormatInt(since+int64(limit)*step.Milliseconds(), 10))
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]string
	if err := c.do(ctx, groupCandles, http.MethodGet, "/api/v5/market/history-candles", q, nil, false, &rows); err != nil {
		return nil, common.WrapErr("fetch_candles", instrument, "", err)
	}
	out := make([]common.Candle, 0, len(rows))
	// newest first on the wire
	for i := len(rows) - 1; i >= 0; i-- {
		k, err := ParseCandle(rows[i])
		if err != nil {
			return nil, common.WrapErr("fetch_candles", instrument, "", err)
		}
		out = append(out, k)
	}
	return out, nil
}

// ParseCandle converts a [ts,o,h,l,c,vol,volCcy,volCcyQuote,confirm] row.
// Rows without a confirm field are treated as confirmed.
func ParseCandle(row []string) (common.Candle, error) {
	if len(row) < 6 {
		return common.Candle{}, fmt.Errorf("candle row has %d fields", len(row))
	}
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return common.Candle{}, fmt.Errorf("candle ts %q: %w", row[0], err)
	}
	k := common.Candle{
		Timestamp: ts,
		Open:      toFloat(row[1]),
		High:      toFloat(row[2]),
		Low:       toFloat(row[3]),
		Close:     toFloat(row[4]),
		Volume:    toFloat(row[5]),
		Confirmed: true,
	}
	if len(row) >= 9 {
		k.Confirmed = row[8] != "0"
	}
	return k, nil
}

// Bar maps an interval like "1h" or "4H" to the OKX bar name.
func Bar(interval string) (string, error) {
	if _, err := common.IntervalDuration(interval); err != nil {
		return "", err
	}
	n, unit := interval[:len(interval)-1], interval[len(interval)-1:]
	switch unit {
	case "m":
		return n + "m", nil
	case "h", "H":
		return n + "H", nil
	case "d", "D":
		return n + "D", nil
	case "w", "W":
		return n + "W", nil
	}
	return "", fmt.Errorf("unsupported interval %q", interval)
}

func toFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func toInt64(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}
