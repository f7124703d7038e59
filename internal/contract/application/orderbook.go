package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	accountapp "github.com/wyfcoding/optionsvenue/internal/account/application"
	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
	mdomain "github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
)

// MarketStats 市场聚合统计
type MarketStats struct {
	ActiveListings int             `json:"active_listings"`
	CallCount      int             `json:"call_count"`
	PutCount       int             `json:"put_count"`
	TradeCount     int64           `json:"trade_count"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	ByUnderlying   map[string]int  `json:"by_underlying"`
}

// OrderBook 跨发行方订单簿：聚合各发行方账本，维护统一挂牌目录。
// 挂牌目录的 IsActive 翻转是下游的权威"已售出"信号；本场馆为挂牌/吃单模式，
// 不做价格时间优先撮合。
type OrderBook struct {
	mu       sync.RWMutex
	ledgers  map[string]*ContractLedger
	listings map[string]*domain.Listing

	accounts  *accountapp.BalanceManager
	store     domain.OptionStore
	publisher domain.EventPublisher
	spot      mdomain.SpotSource

	tradeCount  int64
	totalVolume decimal.Decimal

	exerciseGrace time.Duration
}

// NewOrderBook 构造函数。store 与 publisher 可为 nil。
func NewOrderBook(accounts *accountapp.BalanceManager, spot mdomain.SpotSource, store domain.OptionStore, publisher domain.EventPublisher) *OrderBook {
	return &OrderBook{
		ledgers:     make(map[string]*ContractLedger),
		listings:    make(map[string]*domain.Listing),
		accounts:    accounts,
		store:       store,
		publisher:   publisher,
		spot:        spot,
		totalVolume: decimal.Zero,
	}
}

// SetExerciseGrace 设置全场馆行权宽限期，覆盖已有与后续创建的发行方账本。
func (ob *OrderBook) SetExerciseGrace(d time.Duration) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.exerciseGrace = d
	for _, l := range ob.ledgers {
		l.SetExerciseGrace(d)
	}
}

// ledger 取发行方账本，惰性创建。
func (ob *OrderBook) ledger(issuerID string) *ContractLedger {
	ob.mu.RLock()
	l, ok := ob.ledgers[issuerID]
	ob.mu.RUnlock()
	if ok {
		return l
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	if l, ok = ob.ledgers[issuerID]; ok {
		return l
	}
	l = NewContractLedger(issuerID, ob.store)
	l.SetExerciseGrace(ob.exerciseGrace)
	ob.ledgers[issuerID] = l
	return l
}

func (ob *OrderBook) publish(ctx context.Context, eventType, key string, event any) {
	if ob.publisher == nil {
		return
	}
	if err := ob.publisher.Publish(ctx, eventType, key, event); err != nil {
		logging.Error(ctx, "failed to publish event", "event_type", eventType, "error", err)
	}
}

// CreateOption 发行方开牌并挂牌。
func (ob *OrderBook) CreateOption(ctx context.Context, issuerID string, params CreateOptionParams) (*domain.Option, error) {
	option, err := ob.ledger(issuerID).Create(ctx, params)
	if err != nil {
		return nil, err
	}

	ob.mu.Lock()
	ob.listings[option.ID] = domain.NewListing(option.Clone())
	ob.mu.Unlock()

	ob.publish(ctx, domain.OptionListedEventType, issuerID, domain.OptionListedEvent{
		OptionID:   option.ID,
		IssuerID:   issuerID,
		Underlying: option.Underlying,
		OptionType: string(option.OptionType),
		Strike:     option.Strike,
		Premium:    option.Premium,
		ExpiresAt:  option.ExpiresAt,
		OccurredOn: time.Now(),
	})
	return option, nil
}

// Buy 吃单购买。资金与合约状态的跨实体一致性按两阶段 reserve/commit 执行：
// 先原子预扣买方权利金（失败即整体失败、零副作用），再到账本做单一赢家
// check-and-set；竞争失败原路退回预扣款，成功则翻转挂牌标志并向发行方入账。
func (ob *OrderBook) Buy(ctx context.Context, optionID, buyerID string) (*domain.Option, error) {
	ob.mu.RLock()
	listing, ok := ob.listings[optionID]
	var premium decimal.Decimal
	var issuerID string
	var active bool
	if ok {
		premium = listing.Option.Premium
		issuerID = listing.Option.IssuerID
		active = listing.IsActive
	}
	ob.mu.RUnlock()

	if !ok {
		return nil, domain.ErrOptionNotFound
	}
	if !active {
		return nil, domain.ErrAlreadyClaimed
	}

	// reserve：预扣买方资金
	if err := ob.accounts.Debit(ctx, buyerID, premium); err != nil {
		return nil, err
	}

	option, err := ob.ledger(issuerID).Sell(ctx, optionID, buyerID)
	if err != nil {
		// abort：竞争失败或状态不合法，退回预扣款
		ob.accounts.CreditSettlement(ctx, buyerID, premium)
		if errors.Is(err, domain.ErrOptionExpired) {
			// 账本在售出路径上已把合约转为 EXPIRED（终态），
			// 周期扫描不会再上报它，挂牌必须在这里同步熄灭
			ob.mu.Lock()
			listing.Deactivate()
			ob.mu.Unlock()
			ob.publish(ctx, domain.OptionExpiredEventType, issuerID, map[string]any{
				"option_id":   optionID,
				"issuer_id":   issuerID,
				"occurred_on": time.Now(),
			})
		}
		return nil, err
	}

	// commit：权威售出信号翻转 + 发行方入账
	ob.mu.Lock()
	listing.Deactivate()
	ob.tradeCount++
	ob.totalVolume = ob.totalVolume.Add(premium)
	ob.mu.Unlock()

	ob.accounts.CreditSettlement(ctx, issuerID, premium)

	trade := &domain.TradeRecord{
		OptionID: optionID,
		Buyer:    buyerID,
		Seller:   issuerID,
		Premium:  premium,
		Size:     option.Amount,
		TradedAt: time.Now(),
	}
	if ob.store != nil {
		if err := ob.store.RecordTrade(ctx, trade); err != nil {
			logging.Error(ctx, "failed to record trade", "option_id", optionID, "error", err)
		}
	}
	ob.publish(ctx, domain.TradeExecutedEventType, buyerID, domain.TradeExecutedEvent{
		OptionID:   optionID,
		Buyer:      buyerID,
		Seller:     issuerID,
		Premium:    premium,
		Size:       option.Amount,
		OccurredOn: time.Now(),
	})
	return option, nil
}

// Exercise 行权并现金结算：向价格源取结算价（锁外、有界超时），
// 赔付从发行方强制出账、向持有人入账；发行方透支即冻结并交由风控。
func (ob *OrderBook) Exercise(ctx context.Context, optionID, callerID string) (*domain.Option, decimal.Decimal, error) {
	ob.mu.RLock()
	listing, ok := ob.listings[optionID]
	ob.mu.RUnlock()
	if !ok {
		return nil, decimal.Zero, domain.ErrOptionNotFound
	}

	underlying := listing.Option.Underlying
	issuerID := listing.Option.IssuerID

	quote, err := ob.spot.GetSpotPrice(ctx, underlying)
	if err != nil {
		return nil, decimal.Zero, err
	}

	payout, option, err := ob.ledger(issuerID).Exercise(ctx, optionID, callerID, quote.Price)
	if err != nil {
		return nil, decimal.Zero, err
	}

	shortfall := false
	if payout.IsPositive() {
		shortfall, err = ob.accounts.SettleExercise(ctx, issuerID, callerID, payout)
		if err != nil {
			logging.Error(ctx, "exercise settlement failed", "option_id", optionID, "error", err)
		}
	}

	ob.publish(ctx, domain.OptionExercisedEventType, callerID, domain.OptionExercisedEvent{
		OptionID:        optionID,
		HolderID:        callerID,
		SettlementPrice: option.SettlementPrice,
		Payout:          payout,
		WriterShortfall: shortfall,
		OccurredOn:      time.Now(),
	})
	return option, payout, nil
}

// Cancel 发行方撤牌，翻转挂牌标志。
func (ob *OrderBook) Cancel(ctx context.Context, optionID, callerID string) (*domain.Option, error) {
	ob.mu.RLock()
	listing, ok := ob.listings[optionID]
	ob.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOptionNotFound
	}

	option, err := ob.ledger(listing.Option.IssuerID).Cancel(ctx, optionID, callerID)
	if err != nil {
		return nil, err
	}

	ob.mu.Lock()
	listing.Deactivate()
	ob.mu.Unlock()
	return option, nil
}

// Quote 只读报价，现货价来自价格源。
func (ob *OrderBook) Quote(ctx context.Context, optionID string) (*QuoteResult, error) {
	ob.mu.RLock()
	listing, ok := ob.listings[optionID]
	ob.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOptionNotFound
	}

	quote, err := ob.spot.GetSpotPrice(ctx, listing.Option.Underlying)
	if err != nil {
		return nil, err
	}
	return ob.ledger(listing.Option.IssuerID).Quote(optionID, quote.Price)
}

// Get 按 ID 取合约快照（任意状态）。
func (ob *OrderBook) Get(optionID string) (*domain.Option, error) {
	ob.mu.RLock()
	listing, ok := ob.listings[optionID]
	ob.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOptionNotFound
	}
	return ob.ledger(listing.Option.IssuerID).Get(optionID)
}

// activeListings 过滤活跃挂牌并按权利金升序排序。
func (ob *OrderBook) activeListings(filter func(*domain.Listing) bool) []*domain.Listing {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var result []*domain.Listing
	for _, listing := range ob.listings {
		if !listing.IsActive {
			continue
		}
		if filter != nil && !filter(listing) {
			continue
		}
		result = append(result, &domain.Listing{
			Option:   listing.Option.Clone(),
			ListedAt: listing.ListedAt,
			IsActive: listing.IsActive,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Option.Premium.LessThan(result[j].Option.Premium)
	})
	return result
}

// Listings 全部活跃挂牌。
func (ob *OrderBook) Listings() []*domain.Listing {
	return ob.activeListings(nil)
}

// ByKind 按期权类型查询活跃挂牌。
func (ob *OrderBook) ByKind(optionType domain.OptionType) []*domain.Listing {
	return ob.activeListings(func(l *domain.Listing) bool {
		return l.Option.OptionType == optionType
	})
}

// ByStrikeRange 按执行价区间查询活跃挂牌。
func (ob *OrderBook) ByStrikeRange(min, max decimal.Decimal) []*domain.Listing {
	return ob.activeListings(func(l *domain.Listing) bool {
		return l.Option.Strike.GreaterThanOrEqual(min) && l.Option.Strike.LessThanOrEqual(max)
	})
}

// ByExpiryRange 按到期时间区间查询活跃挂牌。
func (ob *OrderBook) ByExpiryRange(from, to time.Time) []*domain.Listing {
	return ob.activeListings(func(l *domain.Listing) bool {
		return !l.Option.ExpiresAt.Before(from) && !l.Option.ExpiresAt.After(to)
	})
}

// Stats 市场聚合统计。
func (ob *OrderBook) Stats() *MarketStats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	stats := &MarketStats{
		TradeCount:   ob.tradeCount,
		TotalVolume:  ob.totalVolume,
		ByUnderlying: make(map[string]int),
	}
	for _, listing := range ob.listings {
		if !listing.IsActive {
			continue
		}
		stats.ActiveListings++
		stats.ByUnderlying[listing.Option.Underlying]++
		if listing.Option.OptionType == domain.OptionTypeCall {
			stats.CallCount++
		} else {
			stats.PutCount++
		}
	}
	return stats
}

// ExpireSweep 跨账本过期扫描，并同步熄灭对应挂牌。
// 与买卖路径共用账本锁；重复并发运行不会二次过期。
func (ob *OrderBook) ExpireSweep(ctx context.Context) int {
	ob.mu.RLock()
	ledgers := make([]*ContractLedger, 0, len(ob.ledgers))
	for _, l := range ob.ledgers {
		ledgers = append(ledgers, l)
	}
	ob.mu.RUnlock()

	total := 0
	for _, l := range ledgers {
		expired := l.ExpireSweep(ctx)
		total += len(expired)

		ob.mu.Lock()
		for _, id := range expired {
			if listing, ok := ob.listings[id]; ok {
				listing.Deactivate()
			}
		}
		ob.mu.Unlock()

		for _, id := range expired {
			ob.publish(ctx, domain.OptionExpiredEventType, l.IssuerID(), map[string]any{
				"option_id":   id,
				"issuer_id":   l.IssuerID(),
				"occurred_on": time.Now(),
			})
		}
	}
	return total
}

// Rehydrate 启动恢复：从持久层加载合约，重建账本与挂牌目录。
// 仅 OPEN 状态的合约恢复为活跃挂牌。
func (ob *OrderBook) Rehydrate(ctx context.Context) error {
	if ob.store == nil {
		return nil
	}

	options, err := ob.store.LoadAllOptions(ctx)
	if err != nil {
		return err
	}

	byIssuer := make(map[string][]*domain.Option)
	for _, option := range options {
		byIssuer[option.IssuerID] = append(byIssuer[option.IssuerID], option)
	}

	for issuerID, group := range byIssuer {
		ob.ledger(issuerID).Rehydrate(group)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	for _, option := range options {
		listing := domain.NewListing(option.Clone())
		listing.IsActive = option.Status == domain.OptionStatusOpen && !option.IsExpired(time.Now())
		ob.listings[option.ID] = listing
	}

	logging.Info(ctx, "order book rehydrated", "options", len(options), "issuers", len(byIssuer))
	return nil
}
