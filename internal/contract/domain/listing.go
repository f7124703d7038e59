package domain

import "time"

// Listing 挂牌条目。IsActive 恰好在售出或撤牌成功时翻转一次，
// 是下游判定"已售出"的唯一权威信号（购买互斥门）。
type Listing struct {
	Option   *Option   `json:"option"`
	ListedAt time.Time `json:"listed_at"`
	IsActive bool      `json:"is_active"`
}

// NewListing 挂牌。
func NewListing(option *Option) *Listing {
	return &Listing{
		Option:   option,
		ListedAt: time.Now(),
		IsActive: true,
	}
}

// Deactivate 翻转活跃标志，幂等。
func (l *Listing) Deactivate() {
	l.IsActive = false
}
