package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/pkg/apperror"
)

type HistoryRepo struct {
	mu        sync.Mutex
	snapshots []*history.ArchivedSnapshot
	runs      []*history.Run
}

var _ history.Repository = (*HistoryRepo)(nil)

func NewHistoryRepo() *HistoryRepo {
	return &HistoryRepo{}
}

func (r *HistoryRepo) SaveSnapshot(ctx context.Context, s *history.ArchivedSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.snapshots {
		if existing.ID == s.ID {
			return apperror.NewConflict("snapshot", "id", s.ID.String())
		}
	}
	cp := *s
	cp.Document = slices.Clone(s.Document)
	r.snapshots = append(r.snapshots, &cp)
	return nil
}

func (r *HistoryRepo) FindSnapshot(ctx context.Context, id uuid.UUID) (*history.ArchivedSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snapshots {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperror.NewAppError(apperror.ErrNotFound, "snapshot not found",
		"snapshot with identifier '"+id.String()+"' was not found", history.ErrSnapshotNotFound)
}

func (r *HistoryRepo) ListSnapshots(ctx context.Context, limit, offset int) ([]*history.ArchivedSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := newestFirst(r.snapshots, func(s *history.ArchivedSnapshot) time.Time { return s.CreatedAt })
	out := make([]*history.ArchivedSnapshot, 0)
	for _, s := range page(sorted, limit, offset) {
		cp := *s
		cp.Document = nil
		out = append(out, &cp)
	}
	return out, nil
}

func (r *HistoryRepo) SaveRun(ctx context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs = append(r.runs, &cp)
	return nil
}

func (r *HistoryRepo) ListRuns(ctx context.Context, limit, offset int) ([]*history.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := newestFirst(r.runs, func(run *history.Run) time.Time { return run.StartedAt })
	return slices.Clone(page(sorted, limit, offset)), nil
}

func newestFirst[T any](items []T, at func(T) time.Time) []T {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(at(b).UnixNano(), at(a).UnixNano())
	})
	return sorted
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Locker is a process-local RunLocker. Expired entries are ignored; a
// non-positive ttl never expires.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lockEntry
	seq   uint64
	nowFn func() time.Time
}

type lockEntry struct {
	token uint64
	until time.Time
}

var _ service.RunLocker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{held: make(map[string]lockEntry), nowFn: time.Now}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (service.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.liveLocked(key) {
		return nil, service.ErrLockHeld
	}
	l.seq++
	l.held[key] = lockEntry{token: l.seq, until: l.expiry(ttl)}
	return &memLease{locker: l, key: key, token: l.seq}, nil
}

func (l *Locker) liveLocked(key string) bool {
	e, ok := l.held[key]
	return ok && (e.until.IsZero() || l.nowFn().Before(e.until))
}

func (l *Locker) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return l.nowFn().Add(ttl)
}

type memLease struct {
	locker *Locker
	key    string
	token  uint64
}

func (m *memLease) Extend(ctx context.Context, ttl time.Duration) error {
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.liveLocked(m.key) || l.held[m.key].token != m.token {
		return service.ErrLockLost
	}
	l.held[m.key] = lockEntry{token: m.token, until: l.expiry(ttl)}
	return nil
}

func (m *memLease) Release(ctx context.Context) error {
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[m.key].token == m.token {
		delete(l.held, m.key)
	}
	return nil
}

func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liveLocked(key)
}
