package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx-exec/pkg/exchanges/common"
)

func newSpotBuy() *Order {
	return New(NewRef(), common.OrderHandle{ID: "1"}, "FIL-USDT", common.SideBuy, common.KindLimit, 5, 10, false)
}

func TestFromRemote(t *testing.T) {
	tests := []struct {
		in   common.RemoteStatus
		want Status
	}{
		{common.RemoteOpen, Accepted},
		{common.RemoteClosed, Completed},
		{common.RemoteCanceled, Canceled},
		{common.RemoteRejected, Rejected},
		{"expired", Rejected},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, FromRemote(tt.in))
		})
	}
}

func TestUpdateTransitions(t *testing.T) {
	o := newSpotBuy()
	assert.Equal(t, Submitted, o.Status())

	terminal := o.Update(common.OrderSnapshot{Status: common.RemoteOpen, Filled: 3, Price: 5})
	assert.False(t, terminal)
	assert.Equal(t, Accepted, o.Status())
	assert.Equal(t, 3.0, o.Filled())

	terminal = o.Update(common.OrderSnapshot{Status: common.RemoteClosed, Filled: 10, Average: 4.9, Fee: common.Fee{Cost: 0.1}})
	assert.True(t, terminal)
	assert.Equal(t, Completed, o.Status())
	assert.Equal(t, 4.9, o.Average())
	assert.Equal(t, 0.1, o.Fee().Cost)
}

func TestTerminalStatesAreSticky(t *testing.T) {
	for _, final := range []common.RemoteStatus{common.RemoteClosed, common.RemoteCanceled, common.RemoteRejected} {
		t.Run(string(final), func(t *testing.T) {
			o := newSpotBuy()
			require.True(t, o.Update(common.OrderSnapshot{Status: final, Filled: 1, Price: 5}))
			want := o.Status()

			// later snapshots must not revert or re-trigger
			assert.False(t, o.Update(common.OrderSnapshot{Status: common.RemoteOpen, Filled: 7}))
			assert.False(t, o.Update(common.OrderSnapshot{Status: common.RemoteClosed, Filled: 10}))
			assert.Equal(t, want, o.Status())
			assert.Equal(t, 1.0, o.Filled())
		})
	}
}

func TestAverageFallsBackToPrice(t *testing.T) {
	o := newSpotBuy()
	o.Update(common.OrderSnapshot{Status: common.RemoteClosed, Filled: 10, Price: 5.2})
	assert.Equal(t, 5.2, o.Average())

	bare := newSpotBuy()
	assert.Equal(t, 5.0, bare.Average())
}

func TestNewRejected(t *testing.T) {
	o := NewRejected(NewRef(), "X", common.SideSell, common.KindMarket, 0, 1, "51008 insufficient balance")
	assert.Equal(t, Rejected, o.Status())
	assert.True(t, o.Status().IsTerminal())
	assert.Equal(t, "51008 insufficient balance", o.Reason())
	assert.False(t, o.Update(common.OrderSnapshot{Status: common.RemoteClosed}))
}

func TestNewRefFitsClientID(t *testing.T) {
	ref := NewRef()
	assert.Len(t, ref, 32)
	assert.NotContains(t, ref, "-")
	assert.NotEqual(t, ref, NewRef())
}

func TestCloneIsIndependent(t *testing.T) {
	o := newSpotBuy()
	c := o.Clone()
	o.Update(common.OrderSnapshot{Status: common.RemoteClosed, Filled: 10})
	assert.Equal(t, Submitted, c.Status())
	assert.Equal(t, "Completed", o.View().Status)
}
