package gateway

import (
	"context"
	"testing"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBankTransferCaptureWaitsForFullReceipt(t *testing.T) {
	ctx := context.Background()
	g := NewBankTransferGateway(zap.NewNop())

	charged, err := g.Charge(ctx, model.GatewayCharge{
		Reference: "ref-1",
		Amount:    decimal.NewFromInt(12000),
		Currency:  model.CurrencyNGN,
	})
	require.NoError(t, err)
	assert.True(t, charged.Pending)
	assert.Equal(t, "bt_ref-1", charged.TransactionID)

	res, err := g.Capture(ctx, charged.TransactionID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Pending)

	require.NoError(t, g.RecordReceipt(ctx, charged.TransactionID, decimal.NewFromInt(5000)))
	res, err = g.Capture(ctx, charged.TransactionID)
	require.NoError(t, err)
	assert.True(t, res.Pending)

	require.NoError(t, g.RecordReceipt(ctx, charged.TransactionID, decimal.NewFromInt(7000)))
	res, err = g.Capture(ctx, charged.TransactionID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Pending)
}

func TestBankTransferRejectsNonPositiveReceipt(t *testing.T) {
	g := NewBankTransferGateway(zap.NewNop())
	assert.Error(t, g.RecordReceipt(context.Background(), "bt_ref-1", decimal.Zero))
}

func TestBankTransferCaptureUnknownTransferStaysPending(t *testing.T) {
	g := NewBankTransferGateway(zap.NewNop())

	res, err := g.Capture(context.Background(), "bt_unknown")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Pending)
}
