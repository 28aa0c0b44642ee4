package store

import (
	"context"
	"sort"
	"sync"

	"github.com/papertrade/trade-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	wallets   map[string]*model.Wallet
	positions map[string]map[string]*model.Position // accountID → symbol → position
	trades    []model.TradeRecord
	walletTxs []model.WalletTransaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:   make(map[string]*model.Wallet),
		positions: make(map[string]map[string]*model.Position),
	}
}

func (s *MemoryStore) GetWallet(_ context.Context, accountID string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to avoid external mutation.
	copy := *w
	return &copy, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, accountID, symbol string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[accountID][symbol]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, accountID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions[accountID]))
	for _, p := range s.positions[accountID] {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func (s *MemoryStore) ListTrades(_ context.Context, accountID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, t := range s.trades {
		if t.AccountID == accountID {
			result = append(result, t)
		}
	}
	// Newest first, matching the history views.
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

func (s *MemoryStore) ListWalletTransactions(_ context.Context, accountID string) ([]model.WalletTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WalletTransaction
	for _, tx := range s.walletTxs {
		if tx.AccountID == accountID {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

// Apply commits the mutation under one lock: all version checks run first,
// then all writes, so a conflict leaves every record untouched.
func (s *MemoryStore) Apply(_ context.Context, m *Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// --- Version checks ---
	cur, walletExists := s.wallets[m.Wallet.AccountID]
	if walletExists && cur.Version != m.Wallet.Version {
		return ErrVersionConflict
	}
	if !walletExists && m.Wallet.Version != 0 {
		return ErrVersionConflict
	}

	if m.Position != nil {
		curPos, posExists := s.positions[m.Position.AccountID][m.Position.Symbol]
		if posExists && curPos.Version != m.Position.Version {
			return ErrVersionConflict
		}
		if !posExists && m.Position.Version != 0 {
			return ErrVersionConflict
		}
		if m.DeletePosition && !posExists {
			return ErrVersionConflict
		}
	}

	// --- Writes ---
	w := *m.Wallet
	w.Version++
	s.wallets[w.AccountID] = &w

	if m.Position != nil {
		if m.DeletePosition {
			delete(s.positions[m.Position.AccountID], m.Position.Symbol)
		} else {
			p := *m.Position
			p.Version++
			if s.positions[p.AccountID] == nil {
				s.positions[p.AccountID] = make(map[string]*model.Position)
			}
			s.positions[p.AccountID][p.Symbol] = &p
		}
	}

	if m.Trade != nil {
		s.trades = append(s.trades, *m.Trade)
	}
	if m.WalletTx != nil {
		s.walletTxs = append(s.walletTxs, *m.WalletTx)
	}
	return nil
}

func (s *MemoryStore) DeleteTrades(_ context.Context, accountID string, ids []string) error {
	idset := make(map[string]bool, len(ids))
	for _, id := range ids {
		idset[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.trades[:0]
	for _, t := range s.trades {
		if t.AccountID == accountID && idset[t.ID] {
			continue
		}
		kept = append(kept, t)
	}
	s.trades = kept
	return nil
}

func (s *MemoryStore) DeleteWalletTransactions(_ context.Context, accountID string, ids []string) error {
	idset := make(map[string]bool, len(ids))
	for _, id := range ids {
		idset[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.walletTxs[:0]
	for _, tx := range s.walletTxs {
		if tx.AccountID == accountID && idset[tx.ID] {
			continue
		}
		kept = append(kept, tx)
	}
	s.walletTxs = kept
	return nil
}
