// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/confman/internal/model"
)

// ErrConditionFailed は条件付き更新の前提条件が満たされず、1行も更新されなかったことを表す。
// 対象レコード自体は存在する。
var ErrConditionFailed = errors.New("conditional update precondition failed")

// ErrDuplicateID は同じIDのレコードが既に存在することを表す。
var ErrDuplicateID = errors.New("duplicate id")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// ListByRole は指定ロールのユーザーを作成日時の昇順で返す。
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションの発行は外部の認証基盤が行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ConferenceRepository はカンファレンスデータの永続化インターフェース。
//
// 状態遷移は「読み取り・検証・書き込み」を1つの条件付きUPDATEとして実行し、
// 同時に実行された遷移のうち1つだけが成功することを保証する。
type ConferenceRepository interface {
	// Create はカンファレンスを作成する。
	Create(ctx context.Context, conference *model.Conference) error

	// FindByID は指定IDのカンファレンスをメインチェアの連絡先付きで取得する。
	// 論理削除済みのレコードも返すため、可視性の判定は呼び出し側で行うこと。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ConferenceWithOwner, error)

	// List はフィルタに一致するカンファレンスを返す。
	// 論理削除済みのレコードはフィルタに関わらず含まれない。
	List(ctx context.Context, filter model.ConferenceFilter) ([]*model.Conference, error)

	// TransitionStatus は status = from かつ未削除の場合に限り status を to に更新する。
	// 更新後のレコードを返す。レコードが存在しない場合はnil、
	// 存在するが前提条件を満たさない場合は ErrConditionFailed を返す。
	TransitionStatus(ctx context.Context, id string, from, to model.ConferenceStatus) (*model.Conference, error)

	// SoftDelete は未削除の場合に限り is_deleted を true に更新する。
	// 更新後のレコードを返す。レコードが存在しない場合はnil、
	// 既に削除済みの場合は ErrConditionFailed を返す。
	SoftDelete(ctx context.Context, id string) (*model.Conference, error)
}
