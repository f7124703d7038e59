package domain

import "errors"

var (
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidState 操作对当前状态不合法（如对未成交期权行权）
	ErrInvalidState = errors.New("operation not legal for current option status")
	// ErrAlreadyClaimed 并发购买竞争失败
	ErrAlreadyClaimed = errors.New("option already claimed by another buyer")
	ErrOptionExpired  = errors.New("option expired")
	// ErrNotYetExpired 行权要求已到期（本场馆为欧式现金结算）
	ErrNotYetExpired   = errors.New("option not yet expired")
	ErrUnauthorized    = errors.New("caller is not permitted to perform this operation")
	ErrListingInactive = errors.New("listing is no longer active")
	ErrInvalidParams   = errors.New("invalid contract parameters")
)
