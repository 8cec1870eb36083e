package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"courtq/pkg/logger"
)

// PriceProvider is the catalog collaborator used to fill price fields.
type PriceProvider interface {
	GetResourcePrice(ctx context.Context, resourceID string, durationMinutes int) (int64, error)
}

// CatalogClient asks the catalog service for a resource price. Failures
// fall back to DefaultPriceCents since price carries no invariant.
type CatalogClient struct {
	http              *HttpClient
	log               *logger.Logger
	DefaultPriceCents int64
}

type priceResponse struct {
	PriceCents int64 `json:"price_cents"`
}

func NewCatalogClient(baseURL string, timeout time.Duration, defaultPriceCents int64, log *logger.Logger) *CatalogClient {
	return &CatalogClient{
		http:              NewHttpClient(baseURL, timeout),
		log:               log,
		DefaultPriceCents: defaultPriceCents,
	}
}

func (c *CatalogClient) GetResourcePrice(ctx context.Context, resourceID string, durationMinutes int) (int64, error) {
	if c.http.BaseURL == "" {
		return c.DefaultPriceCents, nil
	}

	path := fmt.Sprintf("/api/v1/resources/%s/price?duration_minutes=%s",
		url.PathEscape(resourceID), strconv.Itoa(durationMinutes))

	resp, err := c.http.GET(ctx, path, nil)
	if err != nil {
		c.log.Warn("Catalog price lookup failed, using default price",
			"resource_id", resourceID,
			"error", err,
		)
		return c.DefaultPriceCents, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("Catalog price lookup returned non-200, using default price",
			"resource_id", resourceID,
			"status", resp.StatusCode,
			"message", GetErrorMessage(resp),
		)
		return c.DefaultPriceCents, nil
	}

	var body priceResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return 0, fmt.Errorf("failed to decode catalog price: %w", err)
	}
	return body.PriceCents, nil
}

// StaticPrice is a PriceProvider returning a fixed amount.
type StaticPrice int64

func (p StaticPrice) GetResourcePrice(context.Context, string, int) (int64, error) {
	return int64(p), nil
}
