// 包 domain 行情领域模型：现货价格源抽象。
// 预言机/行情网络本身不在本仓库范围内，核心只依赖该接口取得 (价格, 置信度, 发布时间)。
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable 价格源不可达或超时，调用方应按可重试失败处理，绝不能当作零价。
	ErrPriceUnavailable = errors.New("spot price unavailable")
	// ErrPriceStale 价格已过期，与计算失败严格区分。
	ErrPriceStale    = errors.New("spot price is stale")
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// SpotQuote 现货报价
type SpotQuote struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Confidence  decimal.Decimal `json:"confidence"`
	PublishTime time.Time       `json:"publish_time"`
}

// IsStale 判断报价是否超过最大可接受时延。
func (q *SpotQuote) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(q.PublishTime) > maxAge
}

// SpotSource 现货价格源。实现方必须尊重 ctx 超时，失败返回 ErrPriceUnavailable。
type SpotSource interface {
	GetSpotPrice(ctx context.Context, symbol string) (*SpotQuote, error)
}
