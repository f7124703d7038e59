package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettleCredit 结算入账。与 Credit 不同，结算款项即使在账户被冻结后也必须到账
// （冻结只阻止账户主动发起的变更，不阻止清算对其的单向增益）。
func (b *Balance) SettleCredit(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	b.Available = b.Available.Add(amount.Truncate(8))
	b.UpdatedAt = time.Now()
}
