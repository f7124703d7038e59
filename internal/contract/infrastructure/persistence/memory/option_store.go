package memory

import (
	"context"
	"sync"

	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
)

type inMemoryOptionStore struct {
	options map[string]*domain.Option
	trades  []*domain.TradeRecord
	mu      sync.Mutex
}

// NewInMemoryOptionStore 内存期权存储，用于测试与单机运行。
func NewInMemoryOptionStore() domain.OptionStore {
	return &inMemoryOptionStore{
		options: make(map[string]*domain.Option),
	}
}

func (s *inMemoryOptionStore) UpsertOption(ctx context.Context, option *domain.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[option.ID] = option.Clone()
	return nil
}

func (s *inMemoryOptionStore) RecordTrade(ctx context.Context, trade *domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *trade
	s.trades = append(s.trades, &copied)
	return nil
}

func (s *inMemoryOptionStore) LoadAllOptions(ctx context.Context) ([]*domain.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Option, 0, len(s.options))
	for _, option := range s.options {
		out = append(out, option.Clone())
	}
	return out, nil
}
