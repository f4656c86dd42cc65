package conference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/confman/internal/gate"
	"github.com/hitoshi/confman/internal/metrics"
	"github.com/hitoshi/confman/internal/model"
	"github.com/hitoshi/confman/internal/repository"
)

// defaultStoreTimeout はServiceConfig.StoreTimeoutが未指定の場合のストア呼び出しのタイムアウト。
const defaultStoreTimeout = 5 * time.Second

// CreationNotifier は作成されたカンファレンスを管理者通知に引き渡す。
// 実装はキューへの投入だけを行い、配送の完了を待たずに戻ること。
type CreationNotifier interface {
	NotifyCreated(c *model.Conference) error
}

// 各操作が要求するProcedure。
var (
	procListPublic  = gate.Public
	procListPending = gate.AdminOnly
	procGet         = gate.Public
	procCreate      = gate.VerifiedUser
	procApprove     = gate.AdminOnly
	procDelete      = gate.AdminOnly
)

// ProcedureFor は操作名に対応するProcedureを返す。ルーターのミドルウェアから参照する。
func ProcedureFor(op string) (gate.Procedure, bool) {
	switch op {
	case "listPublicConferences":
		return procListPublic, true
	case "listPendingConferences":
		return procListPending, true
	case "getConference":
		return procGet, true
	case "createConference":
		return procCreate, true
	case "approveConference":
		return procApprove, true
	case "deleteConference":
		return procDelete, true
	}
	return gate.Procedure{}, false
}

// ServiceConfig はServiceの設定。
type ServiceConfig struct {
	// StoreTimeout はストア呼び出し1回あたりのタイムアウト。
	StoreTimeout time.Duration
	Logger       *slog.Logger
	// Now と NewID はテストで差し替える。
	Now   func() time.Time
	NewID func() string
}

// Service はカンファレンスの操作サービス。
// すべての操作は最初にProcedureのゲートを評価し、通過した場合のみストアにアクセスする。
type Service struct {
	repo      repository.ConferenceRepository
	validator *Validator
	notifier  CreationNotifier
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。notifierとcollectorはnilでもよい。
func NewService(
	repo repository.ConferenceRepository,
	validator *Validator,
	notifier CreationNotifier,
	collector metrics.MetricsCollector,
	cfg ServiceConfig,
) *Service {
	s := &Service{
		repo:      repo,
		validator: validator,
		notifier:  notifier,
		metrics:   collector,
		logger:    cfg.Logger,
		timeout:   cfg.StoreTimeout,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = defaultStoreTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// ListPublic は承認済みかつ公開のカンファレンスを開催日の昇順で返す。
func (s *Service) ListPublic(ctx context.Context, caller model.Principal) ([]Summary, error) {
	if _, err := s.authorize(ctx, procListPublic, caller); err != nil {
		return nil, err
	}
	return s.list(ctx, "conference.list_public", PublicListFilter())
}

// ListPending は審査待ちのカンファレンスを作成日時の降順で返す。管理者専用。
func (s *Service) ListPending(ctx context.Context, caller model.Principal) ([]Summary, error) {
	if _, err := s.authorize(ctx, procListPending, caller); err != nil {
		return nil, err
	}
	return s.list(ctx, "conference.list_pending", PendingQueueFilter())
}

func (s *Service) list(ctx context.Context, op string, filter model.ConferenceFilter) ([]Summary, error) {
	var rows []*model.Conference
	err := s.withStore(ctx, op, func(ctx context.Context) error {
		var err error
		rows, err = s.repo.List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ProjectList(rows, filter), nil
}

// Get は単一のカンファレンスを呼び出し元のロールに応じて射影して返す。
func (s *Service) Get(ctx context.Context, caller model.Principal, id string) (*Detail, error) {
	authorized, err := s.authorize(ctx, procGet, caller)
	if err != nil {
		return nil, err
	}
	var rec *model.ConferenceWithOwner
	err = s.withStore(ctx, "conference.get", func(ctx context.Context) error {
		var err error
		rec, err = s.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ProjectSingle(authorized, id, rec)
}

// Created は作成操作の結果。作成者には承認前のレコードを閲覧する権限がないため、
// IDと状態だけを返す。
type Created struct {
	ID        string
	Status    model.ConferenceStatus
	CreatedAt time.Time
}

// Create はカンファレンスをPENDINGで作成し、管理者への通知をキューに投入する。
// 確認済みの一般ユーザー専用。通知の失敗は作成結果に影響しない。
func (s *Service) Create(ctx context.Context, caller model.Principal, in model.CreateConferenceInput) (*Created, error) {
	authorized, err := s.authorize(ctx, procCreate, caller)
	if err != nil {
		return nil, err
	}

	normalized, err := s.validator.Normalize(in)
	if err != nil {
		return nil, err
	}

	c := NewPending(normalized, authorized.ID(), s.newID(), s.now().UTC())
	err = s.withStore(ctx, "conference.create", func(ctx context.Context) error {
		return s.repo.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordConferenceCreated()
	}
	s.logger.InfoContext(ctx, "conference created",
		slog.String("conference_id", c.ID),
		slog.String("owner_id", c.OwnerID),
		slog.Bool("is_public", c.IsPublic),
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyCreated(c); err != nil {
			s.logger.WarnContext(ctx, "failed to enqueue admin notification",
				slog.String("conference_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &Created{ID: c.ID, Status: c.Status, CreatedAt: c.CreatedAt}, nil
}

// Approve はPENDINGのカンファレンスをAPPROVEDに遷移させる。管理者専用。
// 判定と更新はストアの条件付き更新で一度に行うため、同時に承認した場合は1つだけが成功する。
func (s *Service) Approve(ctx context.Context, caller model.Principal, id string) (*Detail, error) {
	authorized, err := s.authorize(ctx, procApprove, caller)
	if err != nil {
		return nil, err
	}

	var c *model.Conference
	err = s.withStore(ctx, "conference.approve", func(ctx context.Context) error {
		var err error
		c, err = s.repo.TransitionStatus(ctx, id, model.ConferenceStatusPending, model.ConferenceStatusApproved)
		return err
	})
	if err = s.transitionResult(ctx, TransitionApprove, id, c == nil, err); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "conference approved",
		slog.String("conference_id", id),
		slog.String("admin_id", authorized.ID()),
	)
	return ProjectSingle(authorized, id, &model.ConferenceWithOwner{Conference: *c})
}

// Delete はカンファレンスを論理削除する。管理者専用。
// 既に削除済みの場合はCONFLICTを返す。
func (s *Service) Delete(ctx context.Context, caller model.Principal, id string) error {
	authorized, err := s.authorize(ctx, procDelete, caller)
	if err != nil {
		return err
	}

	var c *model.Conference
	err = s.withStore(ctx, "conference.delete", func(ctx context.Context) error {
		var err error
		c, err = s.repo.SoftDelete(ctx, id)
		return err
	})
	if err = s.transitionResult(ctx, TransitionDelete, id, c == nil, err); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "conference deleted",
		slog.String("conference_id", id),
		slog.String("admin_id", authorized.ID()),
	)
	return nil
}

// transitionResult は条件付き更新の結果を型付きエラーに変換し、メトリクスに記録する。
func (s *Service) transitionResult(ctx context.Context, t Transition, id string, missing bool, err error) error {
	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, repository.ErrConditionFailed):
		outcome = metrics.OutcomeConflict
		err = model.NewInvalidTransitionError(id, string(t))
	case err != nil:
		outcome = metrics.OutcomeError
	case missing:
		outcome = metrics.OutcomeNotFound
		err = model.NewConferenceNotFoundError(id)
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(t), outcome)
	}
	if outcome == metrics.OutcomeConflict {
		s.logger.InfoContext(ctx, "conference transition rejected",
			slog.String("conference_id", id),
			slog.String("transition", string(t)),
		)
	}
	return err
}

// authorize はゲートを評価し、拒否された場合はログとメトリクスに記録する。
func (s *Service) authorize(ctx context.Context, proc gate.Procedure, caller model.Principal) (model.Principal, error) {
	authorized, err := proc.Authorize(caller)
	if err == nil {
		return authorized, nil
	}
	var d *gate.Denial
	if errors.As(err, &d) {
		if s.metrics != nil {
			s.metrics.RecordGateDenial(d.Procedure, d.Gate)
		}
		principalID := ""
		if caller != nil {
			principalID = caller.ID()
		}
		s.logger.WarnContext(ctx, "gate denied",
			slog.String("procedure", d.Procedure),
			slog.String("gate", d.Gate),
			slog.String("principal_id", principalID),
			slog.String("reason", d.Err.Code),
		)
	}
	return nil, err
}

// withStore はストア呼び出しにタイムアウトを設定する。
// タイムアウトした場合は再試行可能なUNAVAILABLEを返す。
func (s *Service) withStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if s.metrics != nil {
			s.metrics.RecordStoreTimeout(op)
		}
		s.logger.WarnContext(ctx, "store call timed out",
			slog.String("operation", op),
			slog.Duration("timeout", s.timeout),
		)
		return model.NewUnavailableError("データストア")
	}
	if errors.Is(err, repository.ErrConditionFailed) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
