// Package auth はセッションからの呼び出し元解決とログアウトを提供する。
// セッションの発行は外部の認証基盤が行う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/confman/internal/model"
	"github.com/hitoshi/confman/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	StoreTimeout time.Duration // セッション・ユーザー参照1回あたりのタイムアウト
	Logger       *slog.Logger
}

// Service はセッションとユーザーから呼び出し元を解決する。
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, sessions repository.SessionRepository, cfg ServiceConfig) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		timeout:  cfg.StoreTimeout,
		logger:   cfg.Logger,
	}
}

// ResolvePrincipal はセッションIDから呼び出し元を解決する。
// セッションが存在しない、期限切れ、またはユーザーが存在しない場合は匿名を返す。
func (s *Service) ResolvePrincipal(ctx context.Context, sessionID string) (model.Principal, error) {
	user, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return model.Anonymous{}, nil
	}
	return user.Principal(), nil
}

// CurrentUser は呼び出し元のユーザー情報を返す。
// 匿名、またはユーザーが削除済みの場合はUNAUTHENTICATEDを返す。
func (s *Service) CurrentUser(ctx context.Context, caller model.Principal) (*model.User, error) {
	if caller == nil || caller.ID() == "" {
		return nil, model.NewUnauthenticatedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.FindByID(ctx, caller.ID())
	if err != nil {
		return nil, storeError("find user", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return user, nil
}

// Logout はセッションを破棄する。空のセッションIDは何もしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return storeError("delete session", err)
	}
	s.logger.Info("session revoked")
	return nil
}

func (s *Service) lookup(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storeError("find session", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, storeError("find user", err)
	}
	if user == nil {
		s.logger.Warn("session refers to unknown user", slog.String("user_id", session.UserID))
		return nil, nil
	}
	return user, nil
}

// storeError はタイムアウトをUNAVAILABLEに変換し、それ以外は操作名を付けてラップする。
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewUnavailableError("セッションストア")
	}
	return fmt.Errorf("%s: %w", op, err)
}
