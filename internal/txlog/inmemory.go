package txlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLog struct {
	mu      sync.RWMutex
	records []Record
	last    map[string]time.Time
	now     func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory log.
func NewInMemory() Log {
	return &inMemoryLog{last: make(map[string]time.Time), now: time.Now}
}

func (l *inMemoryLog) Append(_ context.Context, e Entry) (Record, error) {
	if err := e.validate(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := nextTimestamp(l.now(), l.last[e.AccountNumber])
	l.last[e.AccountNumber] = ts
	rec := Record{
		ID:               uuid.NewString(),
		AccountNumber:    e.AccountNumber,
		Kind:             e.Kind,
		Amount:           e.Amount,
		Timestamp:        ts,
		ReferenceAccount: e.reference(),
		CorrelationID:    e.CorrelationID,
	}
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *inMemoryLog) ListAll(_ context.Context) ([]Record, error) {
	return l.filter(func(Record) bool { return true }), nil
}

func (l *inMemoryLog) ListByAccount(_ context.Context, number string) ([]Record, error) {
	return l.filter(func(r Record) bool { return r.AccountNumber == number }), nil
}

// Clear drops every record. Timestamps handed out earlier still bound new ones.
func (l *inMemoryLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	return nil
}

func (l *inMemoryLog) filter(keep func(Record) bool) []Record {
	l.mu.RLock()
	out := make([]Record, 0, len(l.records))
	for i := len(l.records) - 1; i >= 0; i-- {
		if keep(l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}
