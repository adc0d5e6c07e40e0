package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	stockHealthKeyPrefix               = "stock_health:"
	stockHealthSummaryKeyPrefix        = stockHealthKeyPrefix + "summary"
	stockHealthRecommendationKeyPrefix = stockHealthKeyPrefix + "recommendations"
	stockHealthScanBatchSize           = 100
)

// RecommendationPage is a cached page of recommendations with the total match count.
type RecommendationPage struct {
	Items []domain.ReorderRecommendation `json:"items"`
	Total int                            `json:"total"`
}

type StockHealthCache interface {
	GetSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, bool, error)
	SetSummary(ctx context.Context, filter domain.StockHealthFilter, summaries []domain.StockHealthSummary) error
	GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) (*RecommendationPage, bool, error)
	SetRecommendations(ctx context.Context, filter domain.StockHealthFilter, page *RecommendationPage) error
	InvalidateAll(ctx context.Context) error
}

type redisStockHealthCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopStockHealthCache struct{}

func NewStockHealthCache(cfg config.CacheConfig) (StockHealthCache, error) {
	if !cfg.Enabled {
		return &noopStockHealthCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisStockHealthCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopStockHealthCache() StockHealthCache {
	return &noopStockHealthCache{}
}

func (c *redisStockHealthCache) GetSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, bool, error) {
	var summaries []domain.StockHealthSummary
	ok, err := getJSON(ctx, c.client, buildStockHealthSummaryKey(filter), &summaries)
	if err != nil || !ok {
		return nil, false, err
	}
	return summaries, true, nil
}

func (c *redisStockHealthCache) SetSummary(ctx context.Context, filter domain.StockHealthFilter, summaries []domain.StockHealthSummary) error {
	return setJSON(ctx, c.client, buildStockHealthSummaryKey(filter), summaries, c.ttl)
}

func (c *redisStockHealthCache) GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) (*RecommendationPage, bool, error) {
	var page RecommendationPage
	ok, err := getJSON(ctx, c.client, buildRecommendationKey(filter), &page)
	if err != nil || !ok {
		return nil, false, err
	}
	return &page, true, nil
}

func (c *redisStockHealthCache) SetRecommendations(ctx context.Context, filter domain.StockHealthFilter, page *RecommendationPage) error {
	return setJSON(ctx, c.client, buildRecommendationKey(filter), page, c.ttl)
}

func (c *redisStockHealthCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, stockHealthKeyPrefix, stockHealthScanBatchSize)
}

func (n *noopStockHealthCache) GetSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, bool, error) {
	return nil, false, nil
}

func (n *noopStockHealthCache) SetSummary(ctx context.Context, filter domain.StockHealthFilter, summaries []domain.StockHealthSummary) error {
	return nil
}

func (n *noopStockHealthCache) GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) (*RecommendationPage, bool, error) {
	return nil, false, nil
}

func (n *noopStockHealthCache) SetRecommendations(ctx context.Context, filter domain.StockHealthFilter, page *RecommendationPage) error {
	return nil
}

func (n *noopStockHealthCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildStockHealthSummaryKey(filter domain.StockHealthFilter) string {
	// pagination does not change a summary
	filter.Page, filter.PageSize = 0, 0
	return fmt.Sprintf("%s:%s", stockHealthSummaryKeyPrefix, stockHealthFilterHash(filter))
}

func buildRecommendationKey(filter domain.StockHealthFilter) string {
	return fmt.Sprintf("%s:%s", stockHealthRecommendationKeyPrefix, stockHealthFilterHash(filter))
}

func stockHealthFilterHash(filter domain.StockHealthFilter) string {
	parts := []string{}

	if len(filter.HospitalIDs) > 0 {
		parts = append(parts, "hospital_ids="+joinStrings(filter.HospitalIDs))
	}
	if name := strings.TrimSpace(filter.MedicineName); name != "" {
		parts = append(parts, "medicine="+strings.ToLower(name))
	}
	if filter.Status != "" {
		parts = append(parts, "status="+strings.ToUpper(string(filter.Status)))
	}
	if filter.PageSize > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", max(filter.Page, 1)), fmt.Sprintf("page_size=%d", filter.PageSize))
	}

	if len(parts) == 0 {
		return "default"
	}

	sort.Strings(parts)
	raw := strings.Join(parts, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func joinStrings(values []string) string {
	c := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			c = append(c, v)
		}
	}
	sort.Strings(c)
	return strings.Join(c, ",")
}
