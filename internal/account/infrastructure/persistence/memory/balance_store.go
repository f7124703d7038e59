package memory

import (
	"context"
	"sync"

	"github.com/wyfcoding/optionsvenue/internal/account/domain"
)

type inMemoryBalanceStore struct {
	balances map[string]*domain.Balance
	mu       sync.Mutex
}

// NewInMemoryBalanceStore 内存余额存储，用于测试与单机运行。
func NewInMemoryBalanceStore() domain.BalanceStore {
	return &inMemoryBalanceStore{
		balances: make(map[string]*domain.Balance),
	}
}

func (s *inMemoryBalanceStore) UpsertBalance(ctx context.Context, balance *domain.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balance.TraderID] = balance.Clone()
	return nil
}

func (s *inMemoryBalanceStore) LoadAllBalances(ctx context.Context) ([]*domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Balance, 0, len(s.balances))
	for _, balance := range s.balances {
		out = append(out, balance.Clone())
	}
	return out, nil
}
