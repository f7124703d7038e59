package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
	"github.com/wyfcoding/optionsvenue/pkg/cache"
)

// CachedSource 在上游价格源前加一层 Redis 读缓存。
// 命中且未过期直接返回；上游失败时若仅有过期缓存，返回 ErrPriceStale 而非旧价。
type CachedSource struct {
	upstream domain.SpotSource
	cache    *cache.RedisCache
	ttl      time.Duration
	maxAge   time.Duration
	timeout  time.Duration
}

// NewCachedSource 创建缓存包装源。
// maxAge 是报价发布时间的最大可接受时延，ttl 是 Redis 键的存活时间。
func NewCachedSource(upstream domain.SpotSource, cache *cache.RedisCache, ttl, maxAge time.Duration) *CachedSource {
	return &CachedSource{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
		maxAge:   maxAge,
		timeout:  3 * time.Second,
	}
}

func (s *CachedSource) cacheKey(symbol string) string {
	return "spot:" + symbol
}

// GetSpotPrice 取现货价格，调用有界超时。
func (s *CachedSource) GetSpotPrice(ctx context.Context, symbol string) (*domain.SpotQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var cached domain.SpotQuote
	hit, err := s.cache.GetJSON(ctx, s.cacheKey(symbol), &cached)
	if err == nil && hit && !cached.IsStale(s.maxAge, time.Now()) {
		return &cached, nil
	}

	quote, err := s.upstream.GetSpotPrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return nil, err
		}
		if hit {
			logging.Warn(ctx, "spot source failed, cached quote is stale", "symbol", symbol, "error", err)
			return nil, domain.ErrPriceStale
		}
		logging.Error(ctx, "spot source failed with no cached quote", "symbol", symbol, "error", err)
		return nil, domain.ErrPriceUnavailable
	}

	if quote.IsStale(s.maxAge, time.Now()) {
		return nil, domain.ErrPriceStale
	}

	if err := s.cache.SetJSON(ctx, s.cacheKey(symbol), quote, s.ttl); err != nil {
		logging.Warn(ctx, "failed to cache spot quote", "symbol", symbol, "error", err)
	}
	return quote, nil
}
