package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/marketplace"
	"github.com/mmeshcher/gamestore/internal/metrics"
)

// ListingSource отдаёт объявления внешней площадки.
type ListingSource interface {
	ListListings(ctx context.Context) ([]marketplace.Listing, int, time.Duration, error)
}

// MarketplaceSync импортирует объявления площадки в каталог.
type MarketplaceSync struct {
	source   ListingSource
	catalog  *Catalog
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *zap.Logger
}

// NewMarketplaceSync создаёт синхронизацию с периодом interval.
func NewMarketplaceSync(source ListingSource, catalog *Catalog, m *metrics.Metrics, interval time.Duration, logger *zap.Logger) *MarketplaceSync {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &MarketplaceSync{
		source:   source,
		catalog:  catalog,
		metrics:  m,
		interval: interval,
		logger:   logger,
	}
}

// Start запускает синхронизацию в отдельной горутине до отмены ctx.
func (s *MarketplaceSync) Start(ctx context.Context) {
	if s.source == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SyncOnce(ctx)
			}
		}
	}()
}

// SyncOnce загружает объявления и обновляет каталог. Возвращает число новых товаров.
func (s *MarketplaceSync) SyncOnce(ctx context.Context) int {
	listings, statusCode, retryAfter, err := s.source.ListListings(ctx)
	if err != nil {
		s.logger.Warn("marketplace request failed", zap.Error(err))
		return 0
	}

	if statusCode == http.StatusTooManyRequests {
		s.logger.Info("marketplace rate limited", zap.Duration("retry_after", retryAfter))
		if retryAfter > 0 {
			timer := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		return 0
	}

	created := 0
	for _, l := range listings {
		isNew, err := s.catalog.UpsertExternal(ctx, ExternalListing{
			ExternalID:  l.ID,
			Name:        l.Title,
			Type:        l.Category,
			Price:       l.Price,
			Description: l.Description,
			Details:     l.Details,
			Available:   l.Available(),
		})
		if err != nil {
			s.logger.Warn("listing import failed", zap.String("external_id", l.ID), zap.Error(err))
			continue
		}
		s.metrics.SyncedProduct()
		if isNew {
			created++
		}
	}
	return created
}
