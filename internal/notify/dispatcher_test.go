package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/confman/internal/metrics"
	"github.com/hitoshi/confman/internal/model"
)

// --- テスト用モック ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	listByRoleFn func(ctx context.Context, role model.Role) ([]*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	if m.listByRoleFn != nil {
		return m.listByRoleFn(ctx, role)
	}
	return nil, nil
}

type mockNotifier struct {
	mu     sync.Mutex
	sent   []Message
	sendFn func(ctx context.Context, msg Message, attempt int) error
	tries  map[string]int
}

func (m *mockNotifier) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	if m.tries == nil {
		m.tries = map[string]int{}
	}
	m.tries[msg.ID]++
	attempt := m.tries[msg.ID]
	m.mu.Unlock()

	var err error
	if m.sendFn != nil {
		err = m.sendFn(ctx, msg, attempt)
	}
	if err == nil {
		m.mu.Lock()
		m.sent = append(m.sent, msg)
		m.mu.Unlock()
	}
	return err
}

func (m *mockNotifier) sentMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

func (m *mockNotifier) totalTries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.tries {
		n += v
	}
	return n
}

type countingCollector struct {
	mu            sync.Mutex
	notifications map[string]int
}

func (c *countingCollector) RecordNotification(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifications == nil {
		c.notifications = map[string]int{}
	}
	c.notifications[outcome]++
}

func (c *countingCollector) count(outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifications[outcome]
}

func (c *countingCollector) RecordGateDenial(string, string)   {}
func (c *countingCollector) RecordConferenceCreated()          {}
func (c *countingCollector) RecordTransition(string, string)   {}
func (c *countingCollector) RecordStoreTimeout(string)         {}
func (c *countingCollector) RecordNotifyLatency(time.Duration) {}
func (c *countingCollector) RecordHTTPStatus(int)              {}

var _ metrics.MetricsCollector = (*countingCollector)(nil)

func adminsRepo(admins ...*model.User) *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id == "user-a" {
				return &model.User{ID: "user-a", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Role: model.RoleUser}, nil
			}
			return nil, nil
		},
		listByRoleFn: func(_ context.Context, role model.Role) ([]*model.User, error) {
			if role != model.RoleAdmin {
				return nil, errors.New("unexpected role")
			}
			return admins, nil
		},
	}
}

func testAdmins() []*model.User {
	return []*model.User{
		{ID: "admin-1", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Role: model.RoleAdmin},
		{ID: "admin-2", FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Role: model.RoleAdmin},
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestDispatcher(users *mockUserRepo, n Notifier, c *countingCollector, cfg DispatcherConfig) (*Dispatcher, *sleepRecorder) {
	cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	d := NewDispatcher(users, n, c, cfg)
	rec := &sleepRecorder{}
	d.sleep = rec.sleep
	return d, rec
}

func conf() *model.Conference {
	return &model.Conference{ID: "conf-1", Title: "Systems 2024", Acronym: "S24", OwnerID: "user-a"}
}

// --- テスト ---

func TestDispatcher_FansOutToEveryAdmin(t *testing.T) {
	n := &mockNotifier{}
	c := &countingCollector{}
	d, _ := newTestDispatcher(adminsRepo(testAdmins()...), n, c, DispatcherConfig{BaseURL: "https://conf.example.org/"})

	d.Start(context.Background())
	if err := d.NotifyCreated(conf()); err != nil {
		t.Fatalf("NotifyCreated: %v", err)
	}
	d.Stop()

	sent := n.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sent))
	}
	recipients := map[string]bool{}
	for _, msg := range sent {
		recipients[msg.Recipient.Email] = true
		if !strings.Contains(msg.Body, "Ada Lovelace <ada@example.com>") {
			t.Errorf("body should describe the creator: %s", msg.Body)
		}
		if !strings.Contains(msg.Body, "https://conf.example.org/admin/conferences/conf-1") {
			t.Errorf("body should link to review page: %s", msg.Body)
		}
	}
	if !recipients["grace@example.com"] || !recipients["alan@example.com"] {
		t.Errorf("recipients = %v", recipients)
	}
	if c.count(metrics.NotifySent) != 2 {
		t.Errorf("sent metric = %d", c.count(metrics.NotifySent))
	}
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	n := &mockNotifier{sendFn: func(_ context.Context, _ Message, attempt int) error {
		if attempt < 3 {
			return errors.New("temporary")
		}
		return nil
	}}
	c := &countingCollector{}
	d, rec := newTestDispatcher(adminsRepo(testAdmins()[0]), n, c, DispatcherConfig{MaxAttempts: 3, RetryBase: time.Second})

	d.Start(context.Background())
	d.NotifyCreated(conf())
	d.Stop()

	if len(n.sentMessages()) != 1 || n.totalTries() != 3 {
		t.Fatalf("sent = %d, tries = %d", len(n.sentMessages()), n.totalTries())
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Errorf("delays = %v", rec.delays)
	}
	if c.count(metrics.NotifySent) != 1 || c.count(metrics.NotifyFailed) != 0 {
		t.Errorf("metrics = %v", c.notifications)
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	n := &mockNotifier{sendFn: func(context.Context, Message, int) error { return errors.New("down") }}
	c := &countingCollector{}
	d, _ := newTestDispatcher(adminsRepo(testAdmins()...), n, c, DispatcherConfig{MaxAttempts: 2})

	d.Start(context.Background())
	d.NotifyCreated(conf())
	d.Stop()

	if n.totalTries() != 4 {
		t.Errorf("tries = %d, want 2 admins x 2 attempts", n.totalTries())
	}
	if c.count(metrics.NotifyFailed) != 2 {
		t.Errorf("failed metric = %d", c.count(metrics.NotifyFailed))
	}
}

func TestDispatcher_PermanentErrorIsNotRetried(t *testing.T) {
	n := &mockNotifier{sendFn: func(context.Context, Message, int) error {
		return &PermanentError{Err: errors.New("bad request")}
	}}
	c := &countingCollector{}
	d, rec := newTestDispatcher(adminsRepo(testAdmins()[0]), n, c, DispatcherConfig{MaxAttempts: 5})

	d.Start(context.Background())
	d.NotifyCreated(conf())
	d.Stop()

	if n.totalTries() != 1 || len(rec.delays) != 0 {
		t.Errorf("tries = %d, delays = %v", n.totalTries(), rec.delays)
	}
	if c.count(metrics.NotifyFailed) != 1 {
		t.Errorf("failed metric = %d", c.count(metrics.NotifyFailed))
	}
}

func TestDispatcher_AdminLookupFailure(t *testing.T) {
	users := &mockUserRepo{listByRoleFn: func(context.Context, model.Role) ([]*model.User, error) {
		return nil, errors.New("db down")
	}}
	n := &mockNotifier{}
	c := &countingCollector{}
	d, _ := newTestDispatcher(users, n, c, DispatcherConfig{})

	d.Start(context.Background())
	d.NotifyCreated(conf())
	d.Stop()

	if n.totalTries() != 0 {
		t.Errorf("tries = %d", n.totalTries())
	}
	if c.count(metrics.NotifyFailed) != 1 {
		t.Errorf("failed metric = %d", c.count(metrics.NotifyFailed))
	}
}

func TestDispatcher_UnknownCreatorStillNotifies(t *testing.T) {
	users := adminsRepo(testAdmins()[0])
	users.findByIDFn = func(context.Context, string) (*model.User, error) { return nil, errors.New("timeout") }
	n := &mockNotifier{}
	d, _ := newTestDispatcher(users, n, &countingCollector{}, DispatcherConfig{})

	d.Start(context.Background())
	d.NotifyCreated(conf())
	d.Stop()

	sent := n.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0].Subject, "user-a") {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestDispatcher_QueueFullDropsWithoutBlocking(t *testing.T) {
	c := &countingCollector{}
	d, _ := newTestDispatcher(adminsRepo(), &mockNotifier{}, c, DispatcherConfig{QueueSize: 1})

	// ワーカー未起動のため1件でキューが満杯になる
	if err := d.NotifyCreated(conf()); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- d.NotifyCreated(conf()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("err = %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("NotifyCreated blocked on a full queue")
	}
	if c.count(metrics.NotifyDropped) != 1 {
		t.Errorf("dropped metric = %d", c.count(metrics.NotifyDropped))
	}
}

func TestDispatcher_NotifyCreatedDoesNotWaitForDelivery(t *testing.T) {
	release := make(chan struct{})
	n := &mockNotifier{sendFn: func(ctx context.Context, _ Message, _ int) error {
		<-release
		return nil
	}}
	d, _ := newTestDispatcher(adminsRepo(testAdmins()[0]), n, &countingCollector{}, DispatcherConfig{})
	d.Start(context.Background())

	start := time.Now()
	if err := d.NotifyCreated(conf()); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("enqueue should return immediately")
	}
	close(release)
	d.Stop()
}

func TestDispatcher_StopRejectsNewEvents(t *testing.T) {
	d, _ := newTestDispatcher(adminsRepo(), &mockNotifier{}, &countingCollector{}, DispatcherConfig{})
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	if err := d.NotifyCreated(conf()); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

func TestDispatcher_ContextCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d, _ := newTestDispatcher(adminsRepo(), &mockNotifier{}, &countingCollector{}, DispatcherConfig{Workers: 3})
	d.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after cancel")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{2 * time.Second, 1, 2 * time.Second},
		{2 * time.Second, 2, 4 * time.Second},
		{2 * time.Second, 3, 8 * time.Second},
		{2 * time.Second, 10, time.Minute},
		{2 * time.Minute, 1, time.Minute},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.base, tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%v, %d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}

func TestDispatcher_ShutdownDrainsQueue(t *testing.T) {
	n := &mockNotifier{}
	d, _ := newTestDispatcher(adminsRepo(testAdmins()...), n, &countingCollector{}, DispatcherConfig{})
	if err := d.NotifyCreated(conf()); err != nil {
		t.Fatal(err)
	}
	d.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := len(n.sentMessages()); got != 2 {
		t.Errorf("sent = %d, want 2 (queued event delivered before stop)", got)
	}
}

// TestDispatcher_ShutdownAbandonsAfterDeadline は配送が終わらない場合でも期限で停止することを検証する。
func TestDispatcher_ShutdownAbandonsAfterDeadline(t *testing.T) {
	n := &mockNotifier{sendFn: func(ctx context.Context, _ Message, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	c := &countingCollector{}
	d, _ := newTestDispatcher(adminsRepo(testAdmins()[0]), n, c, DispatcherConfig{Timeout: time.Hour})
	d.Start(context.Background())
	if err := d.NotifyCreated(conf()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v, should stop soon after the deadline", elapsed)
	}
	if err := d.NotifyCreated(conf()); !errors.Is(err, ErrStopped) {
		t.Errorf("enqueue after Shutdown err = %v, want ErrStopped", err)
	}
}
