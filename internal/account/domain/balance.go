// 包 domain 资金账户领域模型。
// 核心不变量：可用余额永不为负；任何会破坏不变量的变更必须原子失败且无副作用。
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrBalanceNotFound        = errors.New("balance not found")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrAccountFrozen          = errors.New("account is frozen")
)

// Balance 单个交易者的资金账户
type Balance struct {
	// 交易者 ID
	TraderID string `json:"trader_id"`
	// 可用余额（USD，8 位小数）
	Available decimal.Decimal `json:"available"`
	// 锁定的保证金/抵押
	Locked decimal.Decimal `json:"locked"`
	// 累计入金
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	// 累计出金
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	// 冻结标志：清算结算透支或持久层出现非法状态后置位，禁止进一步变更
	Frozen    bool      `json:"frozen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBalance 创建空账户。
func NewBalance(traderID string) *Balance {
	return &Balance{
		TraderID:       traderID,
		Available:      decimal.Zero,
		Locked:         decimal.Zero,
		TotalDeposited: decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		UpdatedAt:      time.Now(),
	}
}

// Clone 返回账户快照副本。
func (b *Balance) Clone() *Balance {
	copied := *b
	return &copied
}

// Equity 账户权益 = 可用 + 锁定。
func (b *Balance) Equity() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

func (b *Balance) guard(amount decimal.Decimal) error {
	if b.Frozen {
		return ErrAccountFrozen
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Deposit 入金。
func (b *Balance) Deposit(amount decimal.Decimal) error {
	if err := b.guard(amount); err != nil {
		return err
	}
	amount = amount.Truncate(8)
	b.Available = b.Available.Add(amount)
	b.TotalDeposited = b.TotalDeposited.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// Withdraw 出金，可用不足则原子失败。
func (b *Balance) Withdraw(amount decimal.Decimal) error {
	if err := b.guard(amount); err != nil {
		return err
	}
	amount = amount.Truncate(8)
	if b.Available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	b.Available = b.Available.Sub(amount)
	b.TotalWithdrawn = b.TotalWithdrawn.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// Credit 贸易入账（权利金收入、平仓返还等）。
func (b *Balance) Credit(amount decimal.Decimal) error {
	if err := b.guard(amount); err != nil {
		return err
	}
	b.Available = b.Available.Add(amount.Truncate(8))
	b.UpdatedAt = time.Now()
	return nil
}

// Debit 贸易出账，可用不足则原子失败。
func (b *Balance) Debit(amount decimal.Decimal) error {
	if err := b.guard(amount); err != nil {
		return err
	}
	amount = amount.Truncate(8)
	if b.Available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	b.Available = b.Available.Sub(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// Lock 将可用余额转入锁定保证金，不足则原子失败。
func (b *Balance) Lock(amount decimal.Decimal) error {
	if err := b.guard(amount); err != nil {
		return err
	}
	amount = amount.Truncate(8)
	if b.Available.LessThan(amount) {
		return ErrInsufficientCollateral
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// Unlock 释放锁定保证金回可用余额，超出锁定量则原子失败。
func (b *Balance) Unlock(amount decimal.Decimal) error {
	if err := b.guard(amount); err != nil {
		return err
	}
	amount = amount.Truncate(8)
	if b.Locked.LessThan(amount) {
		return ErrInsufficientCollateral
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// ForceDebit 结算强制出账：行权结算时卖方义务可能超过锁定抵押，
// 允许可用余额转负，同时冻结账户等待风控处理。返回是否发生透支。
func (b *Balance) ForceDebit(amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}
	b.Available = b.Available.Sub(amount.Truncate(8))
	b.UpdatedAt = time.Now()
	if b.Available.IsNegative() {
		b.Frozen = true
		return true, nil
	}
	return false, nil
}

// BalanceStore 余额持久化协作方。
// 写入为 fire-and-forget，核心不变量不依赖其同步成功；启动加载必须同步完成。
type BalanceStore interface {
	UpsertBalance(ctx context.Context, balance *Balance) error
	LoadAllBalances(ctx context.Context) ([]*Balance, error)
}
