package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"okx-exec/pkg/exchanges/common"
)

type placeRequest struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	Side       string `json:"side"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	Px         string `json:"px,omitempty"`
	ClOrdID    string `json:"clOrdId,omitempty"`
	TgtCcy     string `json:"tgtCcy,omitempty"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
}

type placeResult struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type orderRow struct {
	InstID     string `json:"instId"`
	OrdID      string `json:"ordId"`
	ClOrdID    string `json:"clOrdId"`
	State      string `json:"state"`
	Side       string `json:"side"`
	Px         string `json:"px"`
	AvgPx      string `json:"avgPx"`
	AccFillSz  string `json:"accFillSz"`
	Fee        string `json:"fee"`
	FeeCcy     string `json:"feeCcy"`
	ReduceOnly string `json:"reduceOnly"`
	UTime      string `json:"uTime"`
}

// CreateOrder places a market or limit order. Stop kinds need the OKX algo
// endpoint and are refused.
func (c *Client) CreateOrder(ctx context.Context, req common.OrderRequest) (common.OrderHandle, error) {
	const op = "create_order"
	body := placeRequest{
		InstID:     req.Instrument,
		Side:       string(req.Side),
		Sz:         req.Size.String(),
		ClOrdID:    req.ClientID,
		ReduceOnly: req.ReduceOnly,
	}
	switch req.Kind {
	case common.KindMarket:
		body.OrdType = "market"
		if req.Type == common.InstrumentSpot {
			// size is always in base currency
			body.TgtCcy = "base_ccy"
		}
	case common.KindLimit:
		body.OrdType = "limit"
		body.Px = req.Price.String()
	case common.KindStop, common.KindStopLimit:
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", fmt.Errorf("%w: %s", common.ErrUnsupportedKind, req.Kind))
	default:
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", fmt.Errorf("%w: %q", common.ErrUnsupportedKind, req.Kind))
	}
	switch req.Type {
	case common.InstrumentSwap:
		body.TdMode = string(req.MarginMode)
		if body.TdMode == "" {
			body.TdMode = string(common.MarginIsolated)
		}
	default:
		body.TdMode = "cash"
	}

	var rows []placeResult
	err := c.do(ctx, groupPlace, http.MethodPost, "/api/v5/trade/order", nil, body, true, &rows)
	if len(rows) > 0 && rows[0].SCode != "" && rows[0].SCode != "0" {
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "",
			fmt.Errorf("%w: %s %s", common.ErrOrderRejected, rows[0].SCode, rows[0].SMsg))
	}
	if err != nil {
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", err)
	}
	if len(rows) == 0 {
		return common.OrderHandle{}, common.WrapErr(op, req.Instrument, "", errors.New("empty response"))
	}
	return common.OrderHandle{ID: rows[0].OrdID, ClientID: rows[0].ClOrdID, Status: common.RemoteOpen}, nil
}

// FetchOrder returns the current state of one order.
func (c *Client) FetchOrder(ctx context.Context, instrument, id string) (common.OrderSnapshot, error) {
	const op = "fetch_order"
	q := url.Values{}
	q.Set("instId", instrument)
	q.Set("ordId", id)
	var rows []orderRow
	if err := c.do(ctx, groupOrder, http.MethodGet, "/api/v5/trade/order", q, nil, true, &rows); err != nil {
		return common.OrderSnapshot{}, common.WrapErr(op, instrument, id, err)
	}
	if len(rows) == 0 {
		return common.OrderSnapshot{}, common.WrapErr(op, instrument, id, errors.New("order not found"))
	}
	return rows[0].snapshot(), nil
}

// CancelOrder cancels one order.
func (c *Client) CancelOrder(ctx context.Context, instrument, id string) error {
	const op = "cancel_order"
	body := map[string]string{"instId": instrument, "ordId": id}
	var rows []placeResult
	err := c.do(ctx, groupCancel, http.MethodPost, "/api/v5/trade/cancel-order", nil, body, true, &rows)
	if len(rows) > 0 && rows[0].SCode != "" && rows[0].SCode != "0" {
		return common.WrapErr(op, instrument, id, fmt.Errorf("cancel refused: %s %s", rows[0].SCode, rows[0].SMsg))
	}
	return common.WrapErr(op, instrument, id, err)
}

func (r orderRow) snapshot() common.OrderSnapshot {
	return common.OrderSnapshot{
		ID:         r.OrdID,
		ClientID:   r.ClOrdID,
		Instrument: r.InstID,
		Status:     remoteStatus(r.State),
		Side:       common.Side(r.Side),
		Price:      toFloat(r.Px),
		Average:    toFloat(r.AvgPx),
		Filled:     toFloat(r.AccFillSz),
		// OKX reports charged fees as negative amounts
		Fee:        common.Fee{Cost: -toFloat(r.Fee), Currency: r.FeeCcy},
		ReduceOnly: r.ReduceOnly == "true",
		Timestamp:  toInt64(r.UTime),
	}
}

func remoteStatus(state string) common.RemoteStatus {
	switch state {
	case "live", "partially_filled":
		return common.RemoteOpen
	case "filled":
		return common.RemoteClosed
	case "canceled", "mmp_canceled":
		return common.RemoteCanceled
	default:
		return common.RemoteRejected
	}
}
