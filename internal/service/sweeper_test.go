package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/marketplace"
	"github.com/mmeshcher/gamestore/internal/model"
)

func TestSweeper_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product := env.addProduct(t, "10.00", "lol")
	p, err := env.payments.CreatePayment(ctx, buyerID, "buyer", product.ID, "")
	require.NoError(t, err)
	_, err = env.loyalty.AddPoints(ctx, buyer2ID, 100, model.PointReasonManual, model.PointMetadata{})
	require.NoError(t, err)

	env.clock.Advance(400 * 24 * time.Hour)

	sweeper := NewSweeper(env.payments, env.loyalty, env.audit, time.Minute, zap.NewNop())
	sweeper.RunOnce(ctx)
	sweeper.RunOnce(ctx)

	assert.Equal(t, model.PaymentStatusExpired, env.store.payment(p.ID).Status)

	acc, err := env.store.GetAccount(ctx, buyer2ID)
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)

	actions := env.store.auditActions()
	assert.Equal(t, 1, countActions(actions, model.ActionPaymentExpired))
	assert.Equal(t, 1, countActions(actions, model.ActionPointsExpired))
}

type stubListingSource struct {
	listings   []marketplace.Listing
	status     int
	retryAfter time.Duration
	err        error
}

func (s *stubListingSource) ListListings(context.Context) ([]marketplace.Listing, int, time.Duration, error) {
	return s.listings, s.status, s.retryAfter, s.err
}

func TestMarketplaceSync_SyncOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	source := &stubListingSource{
		status: http.StatusOK,
		listings: []marketplace.Listing{
			{ID: "ext-1", Title: "Valorant Radiant", Category: "valorant", Price: decimal.RequireFromString("300"), Status: marketplace.ListingActive},
			{ID: "ext-2", Title: "LoL Silver", Category: "lol", Price: decimal.RequireFromString("20"), Status: marketplace.ListingPaused},
			{ID: "", Title: "broken", Category: "lol"},
		},
	}
	sync := NewMarketplaceSync(source, env.catalog, nil, time.Minute, zap.NewNop())

	assert.Equal(t, 2, sync.SyncOnce(ctx))
	assert.Equal(t, 0, sync.SyncOnce(ctx))

	paused, err := env.store.GetProductByExternalID(ctx, "ext-2")
	require.NoError(t, err)
	assert.False(t, paused.Available)

	source.err = errors.New("connection refused")
	assert.Equal(t, 0, sync.SyncOnce(ctx))

	source.err = nil
	source.status = http.StatusTooManyRequests
	source.listings = nil
	assert.Equal(t, 0, sync.SyncOnce(ctx))
}
