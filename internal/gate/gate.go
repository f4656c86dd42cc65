// Package gate は操作ごとに合成される認可ゲートのチェーンを提供する。
//
// 各ゲートは呼び出し元のPrincipalを検査し、通過させるか型付きのエラーで
// 後続のゲートとハンドラーを打ち切る。ゲートは副作用を持たず、
// 同じ (Principal, ゲート列) の組に対して常に同じ結果を返す。
package gate

import (
	"context"
	"fmt"

	"github.com/hitoshi/confman/internal/model"
)

// 標準ゲートの名前。メトリクスとログのラベルに使用する。
const (
	NameAuthenticated = "authenticated"
	NameRole          = "role"
	NameVerified      = "verified"
	NameAdmin         = "admin"
)

// Gate は1つの認可述語。
// 検査に成功した場合は、後続に渡すPrincipal（絞り込み済みでもよい）を返す。
type Gate struct {
	name  string
	check func(p model.Principal) (model.Principal, error)
}

// Name はゲート名を返す。
func (g Gate) Name() string { return g.name }

// Check はゲートを単独で評価する。
func (g Gate) Check(p model.Principal) (model.Principal, error) {
	if p == nil {
		p = model.Anonymous{}
	}
	return g.check(p)
}

// Authenticated は解決済みのPrincipalが存在しない場合にUNAUTHENTICATEDで失敗する。
func Authenticated() Gate {
	return Gate{
		name: NameAuthenticated,
		check: func(p model.Principal) (model.Principal, error) {
			if _, ok := p.(model.Anonymous); ok {
				return nil, model.NewUnauthenticatedError()
			}
			return p, nil
		},
	}
}

// Role はPrincipalのロールが指定ロールと完全に一致しない場合にFORBIDDENで失敗する。
// 「以上」ではなく一致で判定するため、USER専用の操作はADMINからも呼べない。
func Role(role model.Role) Gate {
	return Gate{
		name: NameRole,
		check: func(p model.Principal) (model.Principal, error) {
			var ok bool
			switch role {
			case model.RoleUser:
				_, ok = p.(model.UserPrincipal)
			case model.RoleAdmin:
				_, ok = p.(model.AdminPrincipal)
			case model.RoleAnonymous:
				_, ok = p.(model.Anonymous)
			}
			if !ok {
				return nil, model.NewForbiddenError(fmt.Sprintf("%s ロールが必要です", role))
			}
			return p, nil
		},
	}
}

// Verified は確認済みでない一般ユーザーをFORBIDDENで拒否する。
// Role(model.RoleUser) の後に置くことを前提とし、一般ユーザー以外も拒否する。
func Verified() Gate {
	return Gate{
		name: NameVerified,
		check: func(p model.Principal) (model.Principal, error) {
			u, ok := p.(model.UserPrincipal)
			if !ok {
				return nil, model.NewForbiddenError("確認済みの一般ユーザーのみが実行できます")
			}
			if !u.Verified {
				return nil, model.NewNotVerifiedError()
			}
			return u, nil
		},
	}
}

// Admin は管理者以外をFORBIDDENで拒否する。
func Admin() Gate {
	return Gate{
		name: NameAdmin,
		check: func(p model.Principal) (model.Principal, error) {
			a, ok := p.(model.AdminPrincipal)
			if !ok {
				return nil, model.NewForbiddenError("管理者権限が必要です")
			}
			return a, nil
		},
	}
}

// Denial はゲートによる拒否を表す。
// Unwrapで*model.APIErrorを返すため、errors.Asで型付きエラーを取り出せる。
type Denial struct {
	Procedure string
	Gate      string
	Err       *model.APIError
}

func (d *Denial) Error() string {
	return fmt.Sprintf("procedure %s denied by %s gate: %v", d.Procedure, d.Gate, d.Err)
}

func (d *Denial) Unwrap() error { return d.Err }

// Procedure は名前付きのゲート列。操作ごとに必要なゲートを宣言する。
type Procedure struct {
	name  string
	gates []Gate
}

// NewProcedure はゲートを指定順に評価するProcedureを生成する。
func NewProcedure(name string, gates ...Gate) Procedure {
	return Procedure{name: name, gates: append([]Gate(nil), gates...)}
}

// Name はProcedure名を返す。
func (p Procedure) Name() string { return p.name }

// Gates はゲート名の一覧を評価順に返す。
func (p Procedure) Gates() []string {
	names := make([]string, len(p.gates))
	for i, g := range p.gates {
		names[i] = g.name
	}
	return names
}

// Authorize はゲートを順に評価する。
// 最初に失敗したゲートで打ち切り、*Denial を返す。
func (p Procedure) Authorize(caller model.Principal) (model.Principal, error) {
	if caller == nil {
		caller = model.Anonymous{}
	}
	current := caller
	for _, g := range p.gates {
		next, err := g.check(current)
		if err != nil {
			apiErr, ok := err.(*model.APIError)
			if !ok {
				apiErr = model.NewForbiddenError(err.Error())
			}
			return nil, &Denial{Procedure: p.name, Gate: g.name, Err: apiErr}
		}
		current = next
	}
	return current, nil
}

// Run はゲートを評価し、通過した場合のみfnを呼び出す。
func Run[T any](ctx context.Context, p Procedure, caller model.Principal, fn func(ctx context.Context, caller model.Principal) (T, error)) (T, error) {
	authorized, err := p.Authorize(caller)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx, authorized)
}

// 標準のProcedure。各操作はこのいずれかを宣言する。
var (
	// Public は誰でも呼び出せる操作。
	Public = NewProcedure("public")
	// Protected は認証済みであれば呼び出せる操作。
	Protected = NewProcedure("protected", Authenticated())
	// VerifiedUser は確認済みの一般ユーザー専用の操作。
	VerifiedUser = NewProcedure("verified_user", Authenticated(), Role(model.RoleUser), Verified())
	// AdminOnly は管理者専用の操作。
	AdminOnly = NewProcedure("admin", Authenticated(), Admin())
)
