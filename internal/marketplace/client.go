// Package marketplace предоставляет клиент для внешней площадки, с которой
// магазин импортирует объявления о продаже аккаунтов.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Статусы объявления на площадке.
const (
	ListingActive = "ACTIVE"
	ListingPaused = "PAUSED"
	ListingSold   = "SOLD"
)

// Client инкапсулирует HTTP-взаимодействие с площадкой.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Listing описывает одно объявление площадки.
type Listing struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Category    string            `json:"category"`
	Price       decimal.Decimal   `json:"price"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
	Status      string            `json:"status"`
}

// Available сообщает, можно ли продавать товар по объявлению.
func (l Listing) Available() bool {
	return strings.EqualFold(l.Status, ListingActive)
}

// NewClient создаёт HTTP-клиент площадки по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListListings запрашивает актуальные объявления. При ответе 429 возвращается
// рекомендуемая пауза из Retry-After, при 204 пустой список.
func (c *Client) ListListings(ctx context.Context) ([]Listing, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("marketplace client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/listings", nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result []Listing
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return result, resp.StatusCode, 0, nil
}
