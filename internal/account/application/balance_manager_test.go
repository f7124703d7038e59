package application

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionsvenue/internal/account/domain"
	"github.com/wyfcoding/optionsvenue/internal/account/infrastructure/persistence/memory"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBalanceManager_DepositWithdraw(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "alice", d(100)))
	require.NoError(t, m.Withdraw(ctx, "alice", d(30)))

	b, err := m.Snapshot("alice")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(d(70)))
	assert.True(t, b.TotalDeposited.Equal(d(100)))
	assert.True(t, b.TotalWithdrawn.Equal(d(30)))

	// 超额提现原子失败，账户不变
	err = m.Withdraw(ctx, "alice", d(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	b, _ = m.Snapshot("alice")
	assert.True(t, b.Available.Equal(d(70)))
	assert.True(t, b.TotalWithdrawn.Equal(d(30)))

	// 非正金额被拒
	assert.ErrorIs(t, m.Deposit(ctx, "alice", d(0)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, m.Withdraw(ctx, "alice", d(-5)), domain.ErrInvalidAmount)
}

func TestBalanceManager_CollateralLock(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "bob", d(100)))
	require.NoError(t, m.LockCollateral(ctx, "bob", d(60)))

	b, _ := m.Snapshot("bob")
	assert.True(t, b.Available.Equal(d(40)))
	assert.True(t, b.Locked.Equal(d(60)))
	assert.True(t, b.Equity().Equal(d(100)))

	// 锁定不能透支可用余额
	assert.ErrorIs(t, m.LockCollateral(ctx, "bob", d(50)), domain.ErrInsufficientBalance)

	require.NoError(t, m.ReleaseCollateral(ctx, "bob", d(60)))
	b, _ = m.Snapshot("bob")
	assert.True(t, b.Available.Equal(d(100)))
	assert.True(t, b.Locked.IsZero())
}

func TestBalanceManager_OpenShort(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	// 可用 450 + 权利金 50 恰好覆盖保证金 500
	require.NoError(t, m.Deposit(ctx, "carol", d(450)))
	require.NoError(t, m.OpenShort(ctx, "carol", d(50), d(500)))

	b, _ := m.Snapshot("carol")
	assert.True(t, b.Available.IsZero())
	assert.True(t, b.Locked.Equal(d(500)))

	// 差一分都不行，且失败无部分效果
	require.NoError(t, m.Deposit(ctx, "dave", d(449)))
	err := m.OpenShort(ctx, "dave", d(50), d(500))
	assert.ErrorIs(t, err, domain.ErrInsufficientCollateral)
	b, _ = m.Snapshot("dave")
	assert.True(t, b.Available.Equal(d(449)))
	assert.True(t, b.Locked.IsZero())
}

func TestBalanceManager_CloseShort(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "erin", d(500)))
	require.NoError(t, m.OpenShort(ctx, "erin", d(0), d(500)))

	// 亏损 120：释放 500、扣 120
	require.NoError(t, m.CloseShort(ctx, "erin", d(500), d(120)))
	b, _ := m.Snapshot("erin")
	assert.True(t, b.Available.Equal(d(380)))
	assert.True(t, b.Locked.IsZero())

	// 亏损超过保证金时封顶，可用余额不为负
	require.NoError(t, m.OpenShort(ctx, "erin", d(0), d(380)))
	require.NoError(t, m.CloseShort(ctx, "erin", d(380), d(1000)))
	b, _ = m.Snapshot("erin")
	assert.True(t, b.Available.IsZero())
	assert.False(t, b.Available.IsNegative())
}

func TestBalanceManager_TransferPremium(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "buyer", d(100)))
	require.NoError(t, m.TransferPremium(ctx, "buyer", "seller", d(60)))

	buyer, _ := m.Snapshot("buyer")
	seller, _ := m.Snapshot("seller")
	assert.True(t, buyer.Available.Equal(d(40)))
	assert.True(t, seller.Available.Equal(d(60)))

	// 余额不足：两边都不动
	err := m.TransferPremium(ctx, "buyer", "seller", d(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	buyer, _ = m.Snapshot("buyer")
	seller, _ = m.Snapshot("seller")
	assert.True(t, buyer.Available.Equal(d(40)))
	assert.True(t, seller.Available.Equal(d(60)))

	assert.ErrorIs(t, m.TransferPremium(ctx, "buyer", "buyer", d(1)), domain.ErrInvalidAmount)
}

func TestBalanceManager_TransferPremium_ConcurrentOpposite(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "x", d(1000)))
	require.NoError(t, m.Deposit(ctx, "y", d(1000)))

	// 相向转账高并发下不得死锁、总额守恒
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.TransferPremium(ctx, "x", "y", d(1))
		}()
		go func() {
			defer wg.Done()
			_ = m.TransferPremium(ctx, "y", "x", d(1))
		}()
	}
	wg.Wait()

	x, _ := m.Snapshot("x")
	y, _ := m.Snapshot("y")
	assert.True(t, x.Available.Add(y.Available).Equal(d(2000)))
	assert.False(t, x.Available.IsNegative())
	assert.False(t, y.Available.IsNegative())
}

func TestBalanceManager_SettleExercise(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "writer", d(1000)))
	shortfall, err := m.SettleExercise(ctx, "writer", "holder", d(400))
	require.NoError(t, err)
	assert.False(t, shortfall)

	writer, _ := m.Snapshot("writer")
	holder, _ := m.Snapshot("holder")
	assert.True(t, writer.Available.Equal(d(600)))
	assert.True(t, holder.Available.Equal(d(400)))

	// 透支：卖方转负并冻结，买方仍足额到账
	shortfall, err = m.SettleExercise(ctx, "writer", "holder", d(900))
	require.NoError(t, err)
	assert.True(t, shortfall)

	writer, _ = m.Snapshot("writer")
	holder, _ = m.Snapshot("holder")
	assert.True(t, writer.Available.Equal(d(-300)))
	assert.True(t, writer.Frozen)
	assert.True(t, holder.Available.Equal(d(1300)))

	// 冻结账户拒绝常规变更，结算入账仍然生效
	assert.ErrorIs(t, m.Withdraw(ctx, "writer", d(1)), domain.ErrAccountFrozen)
	m.CreditSettlement(ctx, "writer", d(300))
	writer, _ = m.Snapshot("writer")
	assert.True(t, writer.Available.IsZero())
	assert.True(t, writer.Frozen)
}

func TestBalanceManager_ConcurrentDebits_NeverNegative(t *testing.T) {
	m := NewBalanceManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Deposit(ctx, "race", d(100)))

	var wg sync.WaitGroup
	var succeeded int64
	var mu sync.Mutex
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Debit(ctx, "race", d(1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), succeeded)
	b, _ := m.Snapshot("race")
	assert.True(t, b.Available.IsZero())
}

func TestBalanceManager_Rehydrate(t *testing.T) {
	store := memory.NewInMemoryBalanceStore()
	ctx := context.Background()

	seed := NewBalanceManager(store)
	require.NoError(t, seed.Deposit(ctx, "alice", d(100)))
	require.NoError(t, seed.LockCollateral(ctx, "alice", d(40)))

	// 持久层中混入一条非法负余额
	require.NoError(t, store.UpsertBalance(ctx, &domain.Balance{
		TraderID:  "corrupt",
		Available: d(-50),
	}))

	restored := NewBalanceManager(store)
	require.NoError(t, restored.Rehydrate(ctx))

	alice, err := restored.Snapshot("alice")
	require.NoError(t, err)
	assert.True(t, alice.Available.Equal(d(60)))
	assert.True(t, alice.Locked.Equal(d(40)))

	corrupt, err := restored.Snapshot("corrupt")
	require.NoError(t, err)
	assert.True(t, corrupt.Frozen, "negative persisted balance must be frozen on restore")
}
