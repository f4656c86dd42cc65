package conference

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/confman/internal/model"
	"github.com/hitoshi/confman/internal/repository"
)

// memRepo はテスト用のインメモリConferenceRepository。
// 条件付き更新はミューテックスの内側で判定と書き込みを行い、ストアの原子性を再現する。
type memRepo struct {
	mu     sync.Mutex
	rows   map[string]*model.Conference
	owners map[string]model.OwnerContact

	// block がtrueの場合、各メソッドはctxが終了するまで戻らない。
	block bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		rows:   make(map[string]*model.Conference),
		owners: make(map[string]model.OwnerContact),
	}
}

func (m *memRepo) wait(ctx context.Context) error {
	if !m.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *memRepo) Create(ctx context.Context, c *model.Conference) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; ok {
		return repository.ErrDuplicateID
	}
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *memRepo) FindByID(ctx context.Context, id string) (*model.ConferenceWithOwner, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	out := &model.ConferenceWithOwner{Conference: *c}
	if owner, ok := m.owners[c.OwnerID]; ok {
		out.Owner = &owner
	}
	return out, nil
}

func (m *memRepo) List(ctx context.Context, f model.ConferenceFilter) ([]*model.Conference, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Conference
	for _, c := range m.rows {
		if Matches(c, f) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if f.OrderBy == model.OrderByCreatedAtDesc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

func (m *memRepo) TransitionStatus(ctx context.Context, id string, from, to model.ConferenceStatus) (*model.Conference, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	if c.IsDeleted || c.Status != from {
		return nil, repository.ErrConditionFailed
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (m *memRepo) SoftDelete(ctx context.Context, id string) (*model.Conference, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	if c.IsDeleted {
		return nil, repository.ErrConditionFailed
	}
	c.IsDeleted = true
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

// put はレコードを直接投入する。
func (m *memRepo) put(c *model.Conference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.rows[c.ID] = &cp
}

func (m *memRepo) get(id string) *model.Conference {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// mockNotifier はテスト用のCreationNotifier。
type mockNotifier struct {
	mu       sync.Mutex
	created  []*model.Conference
	notifyFn func(c *model.Conference) error
}

func (n *mockNotifier) NotifyCreated(c *model.Conference) error {
	n.mu.Lock()
	n.created = append(n.created, c)
	n.mu.Unlock()
	if n.notifyFn != nil {
		return n.notifyFn(c)
	}
	return nil
}

func (n *mockNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created)
}

// recordingCollector はテスト用のMetricsCollector。
type recordingCollector struct {
	mu            sync.Mutex
	denials       []string
	transitions   map[string]int
	storeTimeouts []string
	created       int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{transitions: map[string]int{}}
}

func (r *recordingCollector) RecordGateDenial(procedure, gate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, procedure+"/"+gate)
}

func (r *recordingCollector) RecordConferenceCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *recordingCollector) RecordTransition(transition, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[transition+"/"+outcome]++
}

func (r *recordingCollector) RecordStoreTimeout(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeTimeouts = append(r.storeTimeouts, operation)
}

func (r *recordingCollector) RecordNotification(string)         {}
func (r *recordingCollector) RecordNotifyLatency(time.Duration) {}
func (r *recordingCollector) RecordHTTPStatus(int)              {}
