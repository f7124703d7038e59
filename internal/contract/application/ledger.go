// 包 application 期权合约应用服务：单发行方账本与跨发行方订单簿。
package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
)

// CreateOptionParams 开牌参数
type CreateOptionParams struct {
	Underlying      string
	OptionType      domain.OptionType
	Strike          decimal.Decimal
	Premium         decimal.Decimal
	Amount          decimal.Decimal
	DurationMinutes int
}

// ContractLedger 单一发行方的合约账本，持有该发行方全部期权的生命周期。
// 所有状态迁移在账本锁内完成；对外只暴露原子操作与快照，调用方拿不到可变引用。
type ContractLedger struct {
	issuerID string
	mu       sync.RWMutex
	options  map[string]*domain.Option
	store    domain.OptionStore
	// grace FILLED 合约到期后保留给持有人的行权窗口，窗口内不被过期扫描收割
	grace time.Duration
}

// NewContractLedger 构造函数。store 可为 nil（纯内存运行）。
func NewContractLedger(issuerID string, store domain.OptionStore) *ContractLedger {
	return &ContractLedger{
		issuerID: issuerID,
		options:  make(map[string]*domain.Option),
		store:    store,
	}
}

// IssuerID 返回账本归属的发行方。
func (l *ContractLedger) IssuerID() string {
	return l.issuerID
}

// SetExerciseGrace 设置行权宽限期。宽限期内已到期的 FILLED 合约
// 不会被 ExpireSweep 收割，持有人仍可行权。
func (l *ContractLedger) SetExerciseGrace(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d > 0 {
		l.grace = d
	}
}

// newOptionID 生成抗碰撞合约 ID：发行方、参数、时间与雪花盐值哈希。
func newOptionID(issuerID string, params CreateOptionParams, now time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		issuerID,
		params.Underlying,
		params.OptionType,
		params.Strike.String(),
		params.Premium.String(),
		now.UnixNano(),
		idgen.GenID(),
	)
	sum := sha256.Sum256([]byte(seed))
	return "OPT-" + hex.EncodeToString(sum[:])[:24]
}

// persist 合约变更落库，失败记日志不回滚（fire-and-forget 写）。
func (l *ContractLedger) persist(ctx context.Context, option *domain.Option) {
	if l.store == nil {
		return
	}
	if err := l.store.UpsertOption(ctx, option.Clone()); err != nil {
		logging.Error(ctx, "failed to persist option", "option_id", option.ID, "error", err)
	}
}

// Create 开立新合约，到期时间 = now + DurationMinutes。
func (l *ContractLedger) Create(ctx context.Context, params CreateOptionParams) (*domain.Option, error) {
	if params.DurationMinutes <= 0 {
		return nil, domain.ErrInvalidParams
	}

	now := time.Now()
	option, err := domain.NewOption(
		newOptionID(l.issuerID, params, now),
		l.issuerID,
		params.Underlying,
		params.OptionType,
		params.Strike,
		params.Premium,
		params.Amount,
		now.Add(time.Duration(params.DurationMinutes)*time.Minute),
	)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.options[option.ID] = option
	l.mu.Unlock()

	l.persist(ctx, option)
	return option.Clone(), nil
}

// Sell 售出合约。单一赢家：并发调用恰有一个成功，其余得到 ErrAlreadyClaimed
// 且零副作用。已过期的 OPEN 合约在此路径上顺带转为 EXPIRED。
func (l *ContractLedger) Sell(ctx context.Context, optionID, buyerID string) (*domain.Option, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	option, ok := l.options[optionID]
	if !ok {
		return nil, domain.ErrOptionNotFound
	}

	if option.Status == domain.OptionStatusOpen && option.IsExpired(time.Now()) {
		if err := option.Expire(time.Now()); err == nil {
			l.persist(ctx, option)
		}
		return nil, domain.ErrOptionExpired
	}

	if err := option.Fill(buyerID); err != nil {
		return nil, err
	}

	l.persist(ctx, option)
	return option.Clone(), nil
}

// Exercise 行权。现货价由调用方在锁外取得后传入，
// 账本锁内只做状态校验与定点结算，返回赔付金额。
func (l *ContractLedger) Exercise(ctx context.Context, optionID, callerID string, spot decimal.Decimal) (decimal.Decimal, *domain.Option, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	option, ok := l.options[optionID]
	if !ok {
		return decimal.Zero, nil, domain.ErrOptionNotFound
	}

	if err := option.Exercise(callerID, spot, time.Now()); err != nil {
		return decimal.Zero, nil, err
	}

	payout := option.Payout(option.SettlementPrice)
	l.persist(ctx, option)
	return payout, option.Clone(), nil
}

// Cancel 发行方撤牌。
func (l *ContractLedger) Cancel(ctx context.Context, optionID, callerID string) (*domain.Option, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	option, ok := l.options[optionID]
	if !ok {
		return nil, domain.ErrOptionNotFound
	}
	if err := option.Cancel(callerID); err != nil {
		return nil, err
	}

	l.persist(ctx, option)
	return option.Clone(), nil
}

// QuoteResult 报价视图。金额字段统一为总量口径（已乘合约数量），
// Breakeven 为标的价格。
type QuoteResult struct {
	OptionID  string          `json:"option_id"`
	Intrinsic decimal.Decimal `json:"intrinsic"`
	TimeValue decimal.Decimal `json:"time_value"`
	Breakeven decimal.Decimal `json:"breakeven"`
	// MaxProfit 看涨买方收益无上限时 Unlimited 置位
	MaxProfit decimal.Decimal `json:"max_profit"`
	Unlimited bool            `json:"max_profit_unlimited"`
	MaxLoss   decimal.Decimal `json:"max_loss"`
}

// Quote 只读报价：内在价值、时间价值、盈亏平衡点与最大盈亏。
func (l *ContractLedger) Quote(optionID string, spot decimal.Decimal) (*QuoteResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	option, ok := l.options[optionID]
	if !ok {
		return nil, domain.ErrOptionNotFound
	}

	intrinsic := option.IntrinsicValue(spot).Mul(option.Amount).Truncate(8)
	timeValue := option.Premium.Sub(intrinsic)
	if timeValue.IsNegative() {
		timeValue = decimal.Zero
	}

	quote := &QuoteResult{
		OptionID:  option.ID,
		Intrinsic: intrinsic,
		TimeValue: timeValue,
		MaxLoss:   option.Premium,
	}

	if option.OptionType == domain.OptionTypeCall {
		quote.Breakeven = option.Strike.Add(option.Premium.Div(option.Amount)).Truncate(8)
		quote.Unlimited = true
	} else {
		quote.Breakeven = option.Strike.Sub(option.Premium.Div(option.Amount)).Truncate(8)
		quote.MaxProfit = option.Strike.Mul(option.Amount).Sub(option.Premium)
	}
	return quote, nil
}

// ExpireSweep 过期扫描：将所有已过到期时间的 OPEN/FILLED 合约转为 EXPIRED。
// 由归属进程周期性调用；在账本锁内串行执行，可安全重入（重复运行不会二次过期）。
// 已售出的合约受行权宽限期保护，宽限期过后才会被收割。
func (l *ContractLedger) ExpireSweep(ctx context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var expired []string
	for _, option := range l.options {
		if option.Status.Terminal() || !option.IsExpired(now) {
			continue
		}
		if option.Status == domain.OptionStatusFilled && now.Before(option.ExpiresAt.Add(l.grace)) {
			continue
		}
		if err := option.Expire(now); err != nil {
			logging.Warn(ctx, "expire sweep skipped option", "option_id", option.ID, "error", err)
			continue
		}
		l.persist(ctx, option)
		expired = append(expired, option.ID)
	}
	return expired
}

// Get 按 ID 取合约快照。
func (l *ContractLedger) Get(optionID string) (*domain.Option, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	option, ok := l.options[optionID]
	if !ok {
		return nil, domain.ErrOptionNotFound
	}
	return option.Clone(), nil
}

// Rehydrate 启动恢复：接管持久层加载的合约。
func (l *ContractLedger) Rehydrate(options []*domain.Option) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, option := range options {
		if option.IssuerID != l.issuerID {
			continue
		}
		l.options[option.ID] = option.Clone()
	}
}
