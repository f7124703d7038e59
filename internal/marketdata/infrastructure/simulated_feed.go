// 包 infrastructure 行情基础设施：本地模拟源与 Redis 缓存包装。
package infrastructure

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
)

// SimulatedFeed 随机游走模拟行情源，用于开发与测试。
type SimulatedFeed struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
	drift  float64
}

// NewSimulatedFeed 创建模拟行情源，初始价格按 symbol 给定。
func NewSimulatedFeed(initial map[string]decimal.Decimal) *SimulatedFeed {
	prices := make(map[string]decimal.Decimal, len(initial))
	for symbol, price := range initial {
		prices[symbol] = price
	}
	return &SimulatedFeed{
		prices: prices,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		drift:  0.002,
	}
}

// GetSpotPrice 返回当前模拟价格并施加一次小幅随机游走。
func (f *SimulatedFeed) GetSpotPrice(ctx context.Context, symbol string) (*domain.SpotQuote, error) {
	select {
	case <-ctx.Done():
		return nil, domain.ErrPriceUnavailable
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[symbol]
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}

	step := 1 + (f.rng.Float64()*2-1)*f.drift
	next := price.Mul(decimal.NewFromFloat(step)).Truncate(8)
	f.prices[symbol] = next

	return &domain.SpotQuote{
		Symbol:      symbol,
		Price:       next,
		Confidence:  next.Mul(decimal.NewFromFloat(0.0005)).Truncate(8),
		PublishTime: time.Now(),
	}, nil
}

// SetPrice 测试辅助：固定某个 symbol 的价格。
func (f *SimulatedFeed) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}
