package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/teller-bank/teller_bank/internal/account"
)

type row struct {
	snap account.Snapshot
	lock chan struct{}
}

type inMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*row
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development. Units lock individual rows, never the whole store.
func NewInMemory() Store {
	return &inMemoryStore{rows: make(map[string]*row)}
}

func (s *inMemoryStore) Create(_ context.Context, acct account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[acct.Number]; exists {
		return ErrDuplicateAccount
	}
	s.rows[acct.Number] = &row{snap: acct.Snapshot(), lock: make(chan struct{}, 1)}
	return nil
}

func (s *inMemoryStore) Get(_ context.Context, number string) (account.Account, error) {
	s.mu.RLock()
	r, ok := s.rows[number]
	var snap account.Snapshot
	if ok {
		snap = r.snap
	}
	s.mu.RUnlock()
	if !ok {
		return account.Account{}, ErrNotFound
	}
	return account.FromSnapshot(snap)
}

func (s *inMemoryStore) List(_ context.Context) ([]account.Account, error) {
	return s.collect(func(account.Snapshot) bool { return true })
}

func (s *inMemoryStore) ListByOwner(_ context.Context, ownerID string) ([]account.Account, error) {
	return s.collect(func(snap account.Snapshot) bool { return snap.OwnerID == ownerID })
}

func (s *inMemoryStore) collect(keep func(account.Snapshot) bool) ([]account.Account, error) {
	s.mu.RLock()
	snaps := make([]account.Snapshot, 0, len(s.rows))
	for _, r := range s.rows {
		if keep(r.snap) {
			snaps = append(snaps, r.snap)
		}
	}
	s.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].Number < snaps[j].Number
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	out := make([]account.Account, 0, len(snaps))
	for _, snap := range snaps {
		acct, err := account.FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// Delete waits for in-flight units on the row before removing it.
func (s *inMemoryStore) Delete(ctx context.Context, number string) error {
	r, ok := s.lookup(number)
	if !ok {
		return ErrNotFound
	}
	select {
	case r.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.lock }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.rows[number]; !ok || current != r {
		return ErrNotFound
	}
	if !r.snap.Balance.IsZero() {
		return ErrBalanceNotZero
	}
	delete(s.rows, number)
	return nil
}

func (s *inMemoryStore) Begin(_ context.Context) (Unit, error) {
	return &inMemoryUnit{store: s, locked: make(map[string]*row), staged: make(map[string]account.Snapshot)}, nil
}

func (s *inMemoryStore) lookup(number string) (*row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[number]
	return r, ok
}

// inMemoryUnit stages writes against locked rows and publishes them on commit.
type inMemoryUnit struct {
	store  *inMemoryStore
	locked map[string]*row
	staged map[string]account.Snapshot
	closed bool
}

func (u *inMemoryUnit) acquire(ctx context.Context, number string) (account.Snapshot, bool, error) {
	if u.closed {
		return account.Snapshot{}, false, ErrUnitClosed
	}
	if snap, ok := u.staged[number]; ok {
		return snap, true, nil
	}
	r, ok := u.store.lookup(number)
	if !ok {
		return account.Snapshot{}, false, nil
	}
	select {
	case r.lock <- struct{}{}:
	case <-ctx.Done():
		return account.Snapshot{}, false, ctx.Err()
	}

	u.store.mu.RLock()
	current, ok := u.store.rows[number]
	var snap account.Snapshot
	if ok && current == r {
		snap = r.snap
	}
	u.store.mu.RUnlock()
	if !ok || current != r {
		// deleted while we waited for the lock
		<-r.lock
		return account.Snapshot{}, false, nil
	}

	u.locked[number] = r
	u.staged[number] = snap
	return snap, true, nil
}

func (u *inMemoryUnit) Get(ctx context.Context, number string) (account.Account, error) {
	snap, ok, err := u.acquire(ctx, number)
	if err != nil {
		return account.Account{}, err
	}
	if !ok {
		return account.Account{}, ErrNotFound
	}
	return account.FromSnapshot(snap)
}

func (u *inMemoryUnit) ConditionalDebit(ctx context.Context, number string, amount, floor decimal.Decimal) (int64, error) {
	snap, ok, err := u.acquire(ctx, number)
	if err != nil || !ok {
		return 0, err
	}
	if snap.Balance.Sub(amount).LessThan(floor) {
		return 0, nil
	}
	u.apply(snap, amount.Neg())
	return 1, nil
}

func (u *inMemoryUnit) Debit(ctx context.Context, number string, amount decimal.Decimal) (int64, error) {
	snap, ok, err := u.acquire(ctx, number)
	if err != nil || !ok {
		return 0, err
	}
	u.apply(snap, amount.Neg())
	return 1, nil
}

func (u *inMemoryUnit) Credit(ctx context.Context, number string, amount decimal.Decimal) (int64, error) {
	snap, ok, err := u.acquire(ctx, number)
	if err != nil || !ok {
		return 0, err
	}
	u.apply(snap, amount)
	return 1, nil
}

func (u *inMemoryUnit) ResetCycle(ctx context.Context, number string) error {
	snap, ok, err := u.acquire(ctx, number)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	snap.MonthlyTransactions = 0
	u.staged[number] = snap
	return nil
}

func (u *inMemoryUnit) apply(snap account.Snapshot, delta decimal.Decimal) {
	snap.Balance = snap.Balance.Add(delta)
	if snap.Kind == account.Checking {
		snap.MonthlyTransactions++
	}
	u.staged[snap.Number] = snap
}

func (u *inMemoryUnit) Commit(_ context.Context) error {
	if u.closed {
		return ErrUnitClosed
	}
	u.store.mu.Lock()
	for number, snap := range u.staged {
		if r, ok := u.store.rows[number]; ok && r == u.locked[number] {
			r.snap = snap
		}
	}
	u.store.mu.Unlock()
	u.release()
	return nil
}

func (u *inMemoryUnit) Rollback(_ context.Context) error {
	if u.closed {
		return nil
	}
	u.release()
	return nil
}

func (u *inMemoryUnit) release() {
	for _, r := range u.locked {
		<-r.lock
	}
	u.locked = nil
	u.staged = nil
	u.closed = true
}
