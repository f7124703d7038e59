// 包 application 资金账户应用服务。
package application

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/optionsvenue/internal/account/domain"
)

// BalanceManager 管理全部交易者的资金账户。
// 锁粒度为单个交易者：不同交易者的变更互不阻塞；跨账户转账按 ID 顺序加锁避免死锁。
type BalanceManager struct {
	mu       sync.RWMutex // 仅保护 accounts map 本身
	accounts map[string]*accountShard
	store    domain.BalanceStore
}

type accountShard struct {
	mu      sync.Mutex
	balance *domain.Balance
}

// NewBalanceManager 构造函数。store 可为 nil（纯内存运行）。
func NewBalanceManager(store domain.BalanceStore) *BalanceManager {
	return &BalanceManager{
		accounts: make(map[string]*accountShard),
		store:    store,
	}
}

// shard 取交易者账户分片，首次引用时惰性创建。
func (m *BalanceManager) shard(traderID string) *accountShard {
	m.mu.RLock()
	s, ok := m.accounts[traderID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.accounts[traderID]; ok {
		return s
	}
	s = &accountShard{balance: domain.NewBalance(traderID)}
	m.accounts[traderID] = s
	return s
}

// persist 变更落库。写入是 fire-and-forget：失败记日志，不回滚内存状态。
func (m *BalanceManager) persist(ctx context.Context, balance *domain.Balance) {
	if m.store == nil {
		return
	}
	if err := m.store.UpsertBalance(ctx, balance.Clone()); err != nil {
		logging.Error(ctx, "failed to persist balance", "trader_id", balance.TraderID, "error", err)
	}
}

// mutate 在单账户锁内执行一次原子变更并落库。
func (m *BalanceManager) mutate(ctx context.Context, traderID string, fn func(*domain.Balance) error) error {
	s := m.shard(traderID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.balance); err != nil {
		return err
	}
	m.persist(ctx, s.balance)
	return nil
}

// Deposit 入金。
func (m *BalanceManager) Deposit(ctx context.Context, traderID string, amount decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error { return b.Deposit(amount) })
}

// Withdraw 出金。
func (m *BalanceManager) Withdraw(ctx context.Context, traderID string, amount decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error { return b.Withdraw(amount) })
}

// Credit 入账。
func (m *BalanceManager) Credit(ctx context.Context, traderID string, amount decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error { return b.Credit(amount) })
}

// Debit 出账。
func (m *BalanceManager) Debit(ctx context.Context, traderID string, amount decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error { return b.Debit(amount) })
}

// LockCollateral 锁定保证金。
func (m *BalanceManager) LockCollateral(ctx context.Context, traderID string, amount decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error { return b.Lock(amount) })
}

// ReleaseCollateral 释放保证金。
func (m *BalanceManager) ReleaseCollateral(ctx context.Context, traderID string, amount decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error { return b.Unlock(amount) })
}

// OpenShort 卖方开仓：权利金入账与保证金锁定必须同一原子步骤完成。
// 权利金计入后仍不足以覆盖保证金时整体失败，账户保持不变。
func (m *BalanceManager) OpenShort(ctx context.Context, traderID string, premium, collateral decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error {
		if b.Frozen {
			return domain.ErrAccountFrozen
		}
		if !collateral.IsPositive() || premium.IsNegative() {
			return domain.ErrInvalidAmount
		}
		if b.Available.Add(premium).LessThan(collateral) {
			return domain.ErrInsufficientCollateral
		}
		if premium.IsPositive() {
			if err := b.Credit(premium); err != nil {
				return err
			}
		}
		return b.Lock(collateral)
	})
}

// CloseShort 卖方平仓：释放保证金并在同一原子步骤内扣除已实现亏损。
// 亏损封顶于保证金（返还额不为负），超出部分由行权结算路径的透支规则处理。
func (m *BalanceManager) CloseShort(ctx context.Context, traderID string, collateral, loss decimal.Decimal) error {
	return m.mutate(ctx, traderID, func(b *domain.Balance) error {
		if err := b.Unlock(collateral); err != nil {
			return err
		}
		if loss.IsPositive() {
			charge := decimal.Min(loss, collateral)
			if err := b.Debit(charge); err != nil {
				// Unlock 刚把 collateral 归还到可用，封顶扣款不可能不足
				return err
			}
		}
		return nil
	})
}

// CreditSettlement 结算入账：reserve/commit 流程中的 commit 或 abort 回补，
// 单向增益，即使目标账户已被冻结也必须到账。
func (m *BalanceManager) CreditSettlement(ctx context.Context, traderID string, amount decimal.Decimal) {
	s := m.shard(traderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance.SettleCredit(amount)
	m.persist(ctx, s.balance)
}

// TransferPremium 成交结算：买方扣款、卖方入账，要么都生效要么都不生效。
// 两个账户按 ID 顺序加锁，避免相向转账互相等待。
func (m *BalanceManager) TransferPremium(ctx context.Context, fromID, toID string, amount decimal.Decimal) error {
	if fromID == toID {
		return domain.ErrInvalidAmount
	}

	first, second := m.shard(fromID), m.shard(toID)
	if toID < fromID {
		first, second = second, first
	}

	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	from, to := first.balance, second.balance
	if from.TraderID != fromID {
		from, to = to, from
	}

	// 收款方冻结时整笔拒绝，保持 all-or-nothing
	if to.Frozen {
		return domain.ErrAccountFrozen
	}
	if err := from.Debit(amount); err != nil {
		return err
	}
	if err := to.Credit(amount); err != nil {
		// Debit 已校验过参数，此处仅可能是并发置冻结，回补买方
		from.SettleCredit(amount)
		return err
	}

	m.persist(ctx, from)
	m.persist(ctx, to)
	return nil
}

// SettleExercise 行权结算：卖方强制出账（允许透支并冻结）、买方结算入账。
// 返回卖方是否透支，供风控接管。
func (m *BalanceManager) SettleExercise(ctx context.Context, writerID, holderID string, payout decimal.Decimal) (bool, error) {
	if !payout.IsPositive() {
		return false, domain.ErrInvalidAmount
	}

	first, second := m.shard(writerID), m.shard(holderID)
	if holderID < writerID {
		first, second = second, first
	}

	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	writer, holder := first.balance, second.balance
	if writer.TraderID != writerID {
		writer, holder = holder, writer
	}

	shortfall, err := writer.ForceDebit(payout)
	if err != nil {
		return false, err
	}
	holder.SettleCredit(payout)

	if shortfall {
		logging.Warn(ctx, "exercise settlement overdrew writer balance, account frozen",
			"writer_id", writerID,
			"available", writer.Available.String(),
		)
	}

	m.persist(ctx, writer)
	m.persist(ctx, holder)
	return shortfall, nil
}

// Snapshot 返回账户快照副本。
func (m *BalanceManager) Snapshot(traderID string) (*domain.Balance, error) {
	m.mu.RLock()
	s, ok := m.accounts[traderID]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrBalanceNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance.Clone(), nil
}

// Rehydrate 启动时从持久层恢复全部账户。
// 持久化状态中出现负可用余额属于致命缺陷：账户被冻结并高声记录，而非静默继续。
func (m *BalanceManager) Rehydrate(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	balances, err := m.store.LoadAllBalances(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range balances {
		if b.Available.IsNegative() && !b.Frozen {
			logging.Error(ctx, "FATAL: persisted balance is negative, freezing account",
				"trader_id", b.TraderID,
				"available", b.Available.String(),
			)
			b.Frozen = true
		}
		m.accounts[b.TraderID] = &accountShard{balance: b}
	}
	return nil
}
