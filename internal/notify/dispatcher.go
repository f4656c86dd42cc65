package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/confman/internal/metrics"
	"github.com/hitoshi/confman/internal/model"
	"github.com/hitoshi/confman/internal/repository"
)

// ErrQueueFull はキューが満杯でイベントを受け付けられなかったことを表す。
var ErrQueueFull = errors.New("notification queue is full")

// ErrStopped は停止後のDispatcherにイベントが投入されたことを表す。
var ErrStopped = errors.New("notification dispatcher is stopped")

const (
	// maxRetryDelay は再試行間隔の上限。
	maxRetryDelay = time.Minute
	// lookupTimeout はユーザー検索1回あたりのタイムアウト。
	lookupTimeout = 5 * time.Second
)

// DispatcherConfig はDispatcherの設定。
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	// Timeout は配送1回あたりのタイムアウト。
	Timeout time.Duration
	// RetryBase は最初の再試行までの待機時間。以後2倍ずつ増加する。
	RetryBase time.Duration
	// RatePerSec は全ワーカー合計の配送レート。
	RatePerSec float64
	// BaseURL は審査画面へのリンクの組み立てに使用する。空の場合はリンクを省略する。
	BaseURL string
	Logger  *slog.Logger
}

// DefaultDispatcherConfig はデフォルト設定を返す。
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:   256,
		Workers:     2,
		MaxAttempts: 3,
		Timeout:     10 * time.Second,
		RetryBase:   2 * time.Second,
		RatePerSec:  5,
	}
}

// Dispatcher は作成イベントを非同期に処理し、管理者全員に1件ずつ通知する。
type Dispatcher struct {
	users    repository.UserRepository
	notifier Notifier
	metrics  metrics.MetricsCollector
	config   DispatcherConfig
	logger   *slog.Logger
	limiter  *rate.Limiter

	mu      sync.RWMutex
	queue   chan ConferenceCreated
	stopped bool
	wg      sync.WaitGroup
	// cancel はワーカーのコンテキストを打ち切る。Start前はnil。
	cancel context.CancelFunc

	// sleep は再試行の待機。テストで差し替える。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher はDispatcherを生成する。collectorはnilでもよい。
func NewDispatcher(users repository.UserRepository, notifier Notifier, collector metrics.MetricsCollector, cfg DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = def.RatePerSec
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		users:    users,
		notifier: notifier,
		metrics:  collector,
		config:   cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		queue:    make(chan ConferenceCreated, cfg.QueueSize),
		sleep:    sleepContext,
	}
}

// NotifyCreated は作成イベントをキューに投入する。ブロックしない。
// キューが満杯の場合はイベントを破棄してErrQueueFullを返す。
func (d *Dispatcher) NotifyCreated(c *model.Conference) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- EventFromConference(c):
		return nil
	default:
		if d.metrics != nil {
			d.metrics.RecordNotification(metrics.NotifyDropped)
		}
		d.logger.Warn("notification queue full, event dropped",
			slog.String("conference_id", c.ID),
			slog.Int("queue_size", d.config.QueueSize),
		)
		return ErrQueueFull
	}
}

// Start はワーカーを起動する。ワーカーはctxの終了、Stop、Shutdownのいずれかまで動作する。
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.logger.Info("notification dispatcher starting",
		slog.Int("workers", d.config.Workers),
		slog.Int("queue_size", d.config.QueueSize),
	)
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx)
		}()
	}
}

// Stop は新規イベントの受け付けを止め、キューに残ったイベントの処理完了を待つ。
// 処理の打ち切りはStartに渡したctxのキャンセルで行う。
func (d *Dispatcher) Stop() {
	d.closeQueue()
	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

// Shutdown はStopと同様にキューの処理完了を待つが、ctxが先に終了した場合は
// 処理中の配送と再試行待ちを打ち切り、ワーカーの終了を待ってctx.Err()を返す。
// 打ち切られたイベントは配送されない。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeQueue()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
	}

	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	<-done
	d.logger.Warn("notification dispatcher drain deadline exceeded, pending notifications abandoned",
		slog.Int("pending", len(d.queue)),
	)
	return ctx.Err()
}

func (d *Dispatcher) closeQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(ctx, ev)
		}
	}
}

// process はイベント1件を処理する。失敗はログとメトリクスにのみ記録する。
func (d *Dispatcher) process(ctx context.Context, ev ConferenceCreated) {
	creator := d.lookupCreator(ctx, ev.OwnerID)

	admins, err := d.listAdmins(ctx)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordNotification(metrics.NotifyFailed)
		}
		d.logger.Error("failed to list admins for notification",
			slog.String("conference_id", ev.ConferenceID),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(admins) == 0 {
		d.logger.Warn("no admins to notify", slog.String("conference_id", ev.ConferenceID))
		return
	}

	reviewURL := d.reviewURL(ev.ConferenceID)
	for _, admin := range admins {
		msg := RenderCreated(ev, creator, RecipientFromUser(admin), reviewURL)
		d.deliver(ctx, ev.ConferenceID, msg)
	}
}

func (d *Dispatcher) lookupCreator(ctx context.Context, ownerID string) model.OwnerContact {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	u, err := d.users.FindByID(ctx, ownerID)
	if err != nil {
		d.logger.Warn("failed to look up conference creator",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
	if u == nil {
		return model.OwnerContact{ID: ownerID}
	}
	return u.Contact()
}

func (d *Dispatcher) listAdmins(ctx context.Context) ([]*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	return d.users.ListByRole(ctx, model.RoleAdmin)
}

func (d *Dispatcher) reviewURL(conferenceID string) string {
	if d.config.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(d.config.BaseURL, "/") + "/admin/conferences/" + conferenceID
}

// deliver はメッセージ1件を再試行付きで配送する。
func (d *Dispatcher) deliver(ctx context.Context, conferenceID string, msg Message) {
	var lastErr error
	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		start := time.Now()
		sendCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
		err := d.notifier.Send(sendCtx, msg)
		cancel()
		if d.metrics != nil {
			d.metrics.RecordNotifyLatency(time.Since(start))
		}

		if err == nil {
			if d.metrics != nil {
				d.metrics.RecordNotification(metrics.NotifySent)
			}
			d.logger.Info("admin notified",
				slog.String("conference_id", conferenceID),
				slog.String("recipient_id", msg.Recipient.UserID),
				slog.Int("attempt", attempt),
			)
			return
		}

		lastErr = err
		d.logger.Warn("notification attempt failed",
			slog.String("conference_id", conferenceID),
			slog.String("recipient_id", msg.Recipient.UserID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if IsPermanent(err) || attempt == d.config.MaxAttempts {
			break
		}
		if err := d.sleep(ctx, RetryDelay(d.config.RetryBase, attempt)); err != nil {
			lastErr = err
			break
		}
	}

	if d.metrics != nil {
		d.metrics.RecordNotification(metrics.NotifyFailed)
	}
	d.logger.Error("admin notification failed",
		slog.String("conference_id", conferenceID),
		slog.String("recipient_id", msg.Recipient.UserID),
		slog.String("message_id", msg.ID),
		slog.String("error", lastErr.Error()),
	)
}

// RetryDelay はattempt回目の失敗後の待機時間を返す。
// base、2倍ずつ増加、最大1分。
func RetryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
