package order

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"okx-exec/pkg/exchanges/common"
)

// Status is the local lifecycle state of an order.
type Status int

const (
	Submitted Status = iota
	Accepted
	Completed
	Canceled
	Rejected
)

var statusNames = [...]string{"Submitted", "Accepted", "Completed", "Canceled", "Rejected"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Canceled || s == Rejected
}

// FromRemote maps an exchange status onto the lifecycle.
func FromRemote(rs common.RemoteStatus) Status {
	switch rs {
	case common.RemoteClosed:
		return Completed
	case common.RemoteCanceled:
		return Canceled
	case common.RemoteOpen:
		return Accepted
	default:
		return Rejected
	}
}

// Order tracks one locally submitted order against its remote state.
// Update is the only mutator after construction.
type Order struct {
	Ref        string // local reference, also sent as the client order id
	ID         string // exchange id, empty until accepted
	Instrument string
	Side       common.Side
	Kind       common.OrderKind
	Price      float64
	Size       float64
	ReduceOnly bool
	CreatedAt  time.Time

	status    Status
	filled    float64
	average   float64
	fee       common.Fee
	reason    string
	updatedAt time.Time
}

// NewRef returns a fresh local reference usable as an OKX clOrdId
// (alphanumeric, at most 32 chars).
func NewRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// New wraps an accepted handle. The order starts Submitted.
func New(ref string, h common.OrderHandle, instrument string, side common.Side, kind common.OrderKind, price, size float64, reduceOnly bool) *Order {
	now := time.Now()
	return &Order{
		Ref:        ref,
		ID:         h.ID,
		Instrument: instrument,
		Side:       side,
		Kind:       kind,
		Price:      price,
		Size:       size,
		ReduceOnly: reduceOnly,
		CreatedAt:  now,
		status:     Submitted,
		updatedAt:  now,
	}
}

// NewRejected builds an order that the exchange refused at submission.
func NewRejected(ref, instrument string, side common.Side, kind common.OrderKind, price, size float64, reason string) *Order {
	o := New(ref, common.OrderHandle{}, instrument, side, kind, price, size, false)
	o.status = Rejected
	o.reason = reason
	return o
}

// Update applies a remote snapshot. Snapshots arriving after a terminal
// state are ignored. It reports whether this update made the order terminal.
func (o *Order) Update(s common.OrderSnapshot) bool {
	if o.status.IsTerminal() {
		return false
	}
	o.status = FromRemote(s.Status)
	o.filled = s.Filled
	o.average = s.Average
	if o.average == 0 {
		o.average = s.Price
	}
	o.fee = s.Fee
	if s.ReduceOnly {
		o.ReduceOnly = true
	}
	if s.Timestamp > 0 {
		o.updatedAt = time.UnixMilli(s.Timestamp)
	} else {
		o.updatedAt = time.Now()
	}
	if o.status == Rejected {
		o.reason = "remote status " + string(s.Status)
	}
	return o.status.IsTerminal()
}

// Status returns the lifecycle state.
func (o *Order) Status() Status { return o.status }

// Filled returns the cumulative filled size.
func (o *Order) Filled() float64 { return o.filled }

// Average returns the average fill price, or the order price if none was reported.
func (o *Order) Average() float64 {
	if o.average == 0 {
		return o.Price
	}
	return o.average
}

// Fee returns the cumulative fee.
func (o *Order) Fee() common.Fee { return o.fee }

// Reason explains a rejection.
func (o *Order) Reason() string { return o.reason }

// UpdatedAt is the time of the last applied snapshot.
func (o *Order) UpdatedAt() time.Time { return o.updatedAt }

// IsBuy reports the order side.
func (o *Order) IsBuy() bool { return o.Side == common.SideBuy }

// Remaining returns the unfilled size.
func (o *Order) Remaining() float64 { return o.Size - o.filled }

// Clone returns a copy safe to hand to other goroutines.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// View is a serializable snapshot of an order.
type View struct {
	Ref        string    `json:"ref"`
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"`
	Kind       string    `json:"kind"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	ReduceOnly bool      `json:"reduce_only"`
	Status     string    `json:"status"`
	Filled     float64   `json:"filled"`
	Average    float64   `json:"average"`
	Fee        float64   `json:"fee"`
	FeeCcy     string    `json:"fee_ccy"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// View returns a serializable snapshot.
func (o *Order) View() View {
	return View{
		Ref:        o.Ref,
		ID:         o.ID,
		Instrument: o.Instrument,
		Side:       string(o.Side),
		Kind:       string(o.Kind),
		Price:      o.Price,
		Size:       o.Size,
		ReduceOnly: o.ReduceOnly,
		Status:     o.status.String(),
		Filled:     o.filled,
		Average:    o.Average(),
		Fee:        o.fee.Cost,
		FeeCcy:     o.fee.Currency,
		Reason:     o.reason,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.updatedAt,
	}
}
