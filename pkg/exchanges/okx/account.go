package okx

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"okx-exec/pkg/exchanges/common"
)

type positionRow struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	MgnMode string `json:"mgnMode"`
	PosSide string `json:"posSide"`
}

// FetchPositions returns open positions, optionally filtered by instrument.
func (c *Client) FetchPositions(ctx context.Context, instruments ...string) ([]common.Position, error) {
	q := url.Values{}
	if len(instruments) > 0 {
		q.Set("instId", strings.Join(instruments, ","))
	}
	var rows []positionRow
	if err := c.do(ctx, groupPositions, http.MethodGet, "/api/v5/account/positions", q, nil, true, &rows); err != nil {
		return nil, common.WrapErr("fetch_positions", strings.Join(instruments, ","), "", err)
	}
	out := make([]common.Position, 0, len(rows))
	for _, r := range rows {
		size := toFloat(r.Pos)
		if r.PosSide == "short" && size > 0 {
			size = -size
		}
		out = append(out, common.Position{
			Instrument: r.InstID,
			Size:       size,
			AvgPrice:   toFloat(r.AvgPx),
			MarginMode: common.MarginMode(r.MgnMode),
		})
	}
	return out, nil
}

// SetLeverage sets the leverage for one instrument and margin mode.
func (c *Client) SetLeverage(ctx context.Context, instrument string, leverage float64, mode common.MarginMode) error {
	body := map[string]string{
		"instId":  instrument,
		"lever":   strconv.FormatFloat(leverage, 'f', -1, 64),
		"mgnMode": string(mode),
	}
	err := c.do(ctx, groupLeverage, http.MethodPost, "/api/v5/account/set-leverage", nil, body, true, nil)
	return common.WrapErr("set_leverage", instrument, "", err)
}
