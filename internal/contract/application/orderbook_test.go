package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountapp "github.com/wyfcoding/optionsvenue/internal/account/application"
	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
	"github.com/wyfcoding/optionsvenue/internal/contract/infrastructure/persistence/memory"
	mdomain "github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
)

// fixedSource 固定价格行情源
type fixedSource struct {
	price decimal.Decimal
}

func (s *fixedSource) GetSpotPrice(ctx context.Context, symbol string) (*mdomain.SpotQuote, error) {
	return &mdomain.SpotQuote{
		Symbol:      symbol,
		Price:       s.price,
		PublishTime: time.Now(),
	}, nil
}

func newTestBook(t *testing.T, spot decimal.Decimal) (*OrderBook, *accountapp.BalanceManager) {
	t.Helper()
	accounts := accountapp.NewBalanceManager(nil)
	book := NewOrderBook(accounts, &fixedSource{price: spot}, nil, nil)
	return book, accounts
}

func fund(t *testing.T, accounts *accountapp.BalanceManager, traderID string, amount int64) {
	t.Helper()
	require.NoError(t, accounts.Deposit(context.Background(), traderID, decimal.NewFromInt(amount)))
}

func TestOrderBook_BuySettlesPremium(t *testing.T) {
	book, accounts := newTestBook(t, decimal.NewFromInt(2000))
	ctx := context.Background()
	fund(t, accounts, "buyer-1", 100)

	option, err := book.CreateOption(ctx, "issuer-1", testParams())
	require.NoError(t, err)

	bought, err := book.Buy(ctx, option.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", bought.HolderID)

	buyer, err := accounts.Snapshot("buyer-1")
	require.NoError(t, err)
	assert.True(t, buyer.Available.Equal(decimal.NewFromInt(50)), "buyer available = %s", buyer.Available)

	issuer, err := accounts.Snapshot("issuer-1")
	require.NoError(t, err)
	assert.True(t, issuer.Available.Equal(decimal.NewFromInt(50)))

	// 挂牌熄灭
	assert.Empty(t, book.Listings())

	stats := book.Stats()
	assert.Equal(t, int64(1), stats.TradeCount)
	assert.True(t, stats.TotalVolume.Equal(decimal.NewFromInt(50)))
}

func TestOrderBook_BuyInsufficientFunds(t *testing.T) {
	book, accounts := newTestBook(t, decimal.NewFromInt(2000))
	ctx := context.Background()
	fund(t, accounts, "buyer-1", 10)

	option, err := book.CreateOption(ctx, "issuer-1", testParams())
	require.NoError(t, err)

	_, err = book.Buy(ctx, option.ID, "buyer-1")
	require.Error(t, err)

	// 失败零副作用：余额不变、挂牌仍活跃
	buyer, err := accounts.Snapshot("buyer-1")
	require.NoError(t, err)
	assert.True(t, buyer.Available.Equal(decimal.NewFromInt(10)))
	assert.Len(t, book.Listings(), 1)
}

func TestOrderBook_BuyRace_LosersRefunded(t *testing.T) {
	book, accounts := newTestBook(t, decimal.NewFromInt(2000))
	ctx := context.Background()

	option, err := book.CreateOption(ctx, "issuer-1", testParams())
	require.NoError(t, err)

	const buyers = 20
	ids := make([]string, buyers)
	for i := range ids {
		ids[i] = "buyer-" + string(rune('a'+i))
		fund(t, accounts, ids[i], 50)
	}

	var wg sync.WaitGroup
	var winners int64
	var mu sync.Mutex
	for _, id := range ids {
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()
			if _, err := book.Buy(ctx, option.ID, buyerID); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners)

	// 败者全额退款
	final, err := book.Get(option.ID)
	require.NoError(t, err)
	for _, id := range ids {
		balance, err := accounts.Snapshot(id)
		require.NoError(t, err)
		if id == final.HolderID {
			assert.True(t, balance.Available.IsZero())
		} else {
			assert.True(t, balance.Available.Equal(decimal.NewFromInt(50)), "loser %s = %s", id, balance.Available)
		}
	}
}

func TestOrderBook_ExerciseSettlement(t *testing.T) {
	store := memory.NewInMemoryOptionStore()
	accounts := accountapp.NewBalanceManager(nil)
	book := NewOrderBook(accounts, &fixedSource{price: decimal.NewFromInt(2500)}, store, nil)
	ctx := context.Background()

	// 注入已到期、已售出的合约并恢复
	option, err := domain.NewOption("OPT-ex", "issuer-1", "ETH", domain.OptionTypeCall,
		decimal.NewFromInt(2000), decimal.NewFromInt(50), decimal.NewFromInt(1),
		time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, option.Fill("holder-1"))
	require.NoError(t, store.UpsertOption(ctx, option))
	require.NoError(t, book.Rehydrate(ctx))

	fund(t, accounts, "issuer-1", 1000)

	exercised, payout, err := book.Exercise(ctx, "OPT-ex", "holder-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OptionStatusExercised, exercised.Status)
	assert.True(t, payout.Equal(decimal.NewFromInt(500)))

	holder, err := accounts.Snapshot("holder-1")
	require.NoError(t, err)
	assert.True(t, holder.Available.Equal(decimal.NewFromInt(500)))

	issuer, err := accounts.Snapshot("issuer-1")
	require.NoError(t, err)
	assert.True(t, issuer.Available.Equal(decimal.NewFromInt(500)))
	assert.False(t, issuer.Frozen)
}

func TestOrderBook_ExerciseWriterShortfall(t *testing.T) {
	store := memory.NewInMemoryOptionStore()
	accounts := accountapp.NewBalanceManager(nil)
	book := NewOrderBook(accounts, &fixedSource{price: decimal.NewFromInt(2500)}, store, nil)
	ctx := context.Background()

	option, err := domain.NewOption("OPT-short", "issuer-1", "ETH", domain.OptionTypeCall,
		decimal.NewFromInt(2000), decimal.NewFromInt(50), decimal.NewFromInt(1),
		time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, option.Fill("holder-1"))
	require.NoError(t, store.UpsertOption(ctx, option))
	require.NoError(t, book.Rehydrate(ctx))

	fund(t, accounts, "issuer-1", 100)

	_, payout, err := book.Exercise(ctx, "OPT-short", "holder-1")
	require.NoError(t, err)
	assert.True(t, payout.Equal(decimal.NewFromInt(500)))

	// 持有人足额到账；发行方透支并被冻结
	holder, err := accounts.Snapshot("holder-1")
	require.NoError(t, err)
	assert.True(t, holder.Available.Equal(decimal.NewFromInt(500)))

	issuer, err := accounts.Snapshot("issuer-1")
	require.NoError(t, err)
	assert.True(t, issuer.Available.Equal(decimal.NewFromInt(-400)))
	assert.True(t, issuer.Frozen)
}

func TestOrderBook_Queries(t *testing.T) {
	book, _ := newTestBook(t, decimal.NewFromInt(2000))
	ctx := context.Background()

	callParams := testParams()
	_, err := book.CreateOption(ctx, "issuer-1", callParams)
	require.NoError(t, err)

	putParams := testParams()
	putParams.Underlying = "BTC"
	putParams.OptionType = domain.OptionTypePut
	putParams.Strike = decimal.NewFromInt(1800)
	putParams.Premium = decimal.NewFromInt(30)
	_, err = book.CreateOption(ctx, "issuer-2", putParams)
	require.NoError(t, err)

	// 权利金升序
	listings := book.Listings()
	require.Len(t, listings, 2)
	assert.True(t, listings[0].Option.Premium.LessThan(listings[1].Option.Premium))

	assert.Len(t, book.ByKind(domain.OptionTypeCall), 1)
	assert.Len(t, book.ByKind(domain.OptionTypePut), 1)
	assert.Len(t, book.ByStrikeRange(decimal.NewFromInt(1900), decimal.NewFromInt(2100)), 1)
	assert.Len(t, book.ByExpiryRange(time.Now(), time.Now().Add(2*time.Hour)), 2)

	stats := book.Stats()
	assert.Equal(t, 2, stats.ActiveListings)
	assert.Equal(t, 1, stats.CallCount)
	assert.Equal(t, 1, stats.PutCount)
	assert.Equal(t, 1, stats.ByUnderlying["ETH"])
}

func TestOrderBook_ExpireSweepDeactivatesListings(t *testing.T) {
	store := memory.NewInMemoryOptionStore()
	accounts := accountapp.NewBalanceManager(nil)
	book := NewOrderBook(accounts, &fixedSource{price: decimal.NewFromInt(2000)}, store, nil)
	ctx := context.Background()

	stale, err := domain.NewOption("OPT-stale", "issuer-1", "ETH", domain.OptionTypeCall,
		decimal.NewFromInt(2000), decimal.NewFromInt(50), decimal.NewFromInt(1),
		time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.UpsertOption(ctx, stale))
	require.NoError(t, book.Rehydrate(ctx))

	// 已过期的合约不应恢复为活跃挂牌
	assert.Empty(t, book.Listings())

	assert.Equal(t, 1, book.ExpireSweep(ctx))
	got, err := book.Get("OPT-stale")
	require.NoError(t, err)
	assert.Equal(t, domain.OptionStatusExpired, got.Status)
}

// backdateOption 把账本内合约的到期时间拨回过去，模拟挂牌后自然到期。
func backdateOption(t *testing.T, book *OrderBook, issuerID, optionID string) {
	t.Helper()
	l := book.ledger(issuerID)
	l.mu.Lock()
	defer l.mu.Unlock()
	option, ok := l.options[optionID]
	require.True(t, ok)
	option.ExpiresAt = time.Now().Add(-time.Minute)
}

func TestOrderBook_BuyExpiredExtinguishesListing(t *testing.T) {
	book, accounts := newTestBook(t, decimal.NewFromInt(2000))
	ctx := context.Background()
	fund(t, accounts, "buyer-1", 100)

	option, err := book.CreateOption(ctx, "issuer-1", testParams())
	require.NoError(t, err)
	backdateOption(t, book, "issuer-1", option.ID)

	_, err = book.Buy(ctx, option.ID, "buyer-1")
	assert.ErrorIs(t, err, domain.ErrOptionExpired)

	// 预扣款原路退回
	buyer, err := accounts.Snapshot("buyer-1")
	require.NoError(t, err)
	assert.True(t, buyer.Available.Equal(decimal.NewFromInt(100)))

	// 售出路径已把合约转为终态，周期扫描不会再上报它，
	// 挂牌必须在购买路径上同步熄灭
	final, err := book.Get(option.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OptionStatusExpired, final.Status)
	assert.Empty(t, book.Listings())
	assert.Equal(t, 0, book.Stats().ActiveListings)
	assert.Equal(t, 0, book.ExpireSweep(ctx))

	// 后续购买按已熄灭挂牌拒绝，不再反复预扣退回
	fund(t, accounts, "buyer-2", 100)
	_, err = book.Buy(ctx, option.ID, "buyer-2")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestOrderBook_Cancel(t *testing.T) {
	book, accounts := newTestBook(t, decimal.NewFromInt(2000))
	ctx := context.Background()
	fund(t, accounts, "buyer-1", 100)

	option, err := book.CreateOption(ctx, "issuer-1", testParams())
	require.NoError(t, err)

	cancelled, err := book.Cancel(ctx, option.ID, "issuer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OptionStatusCancelled, cancelled.Status)

	// 撤牌后不可购买且不在目录中
	_, err = book.Buy(ctx, option.ID, "buyer-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Empty(t, book.Listings())

	// 零副作用：买方余额未动
	buyer, err := accounts.Snapshot("buyer-1")
	require.NoError(t, err)
	assert.True(t, buyer.Available.Equal(decimal.NewFromInt(100)))
}
