// Package model はドメインモデルを定義する。
package model

// Role はプリンシパルの役割を表す。
// 権限の全順序は ANONYMOUS < USER < ADMIN だが、
// 認可判定では順序比較ではなく Principal の型で分岐すること。
type Role string

const (
	// RoleAnonymous は未認証の呼び出し元。
	RoleAnonymous Role = "ANONYMOUS"
	// RoleUser は一般ユーザー（投稿者）。
	RoleUser Role = "USER"
	// RoleAdmin は管理者（審査者）。
	RoleAdmin Role = "ADMIN"
)

// Valid はロール値が既知のものかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAnonymous, RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// Principal はリクエストの呼び出し元を表すタグ付きバリアント。
// 実装は Anonymous、UserPrincipal、AdminPrincipal の3種類のみ。
// 一般ユーザーと管理者は互いに包含関係にない別々のアクタークラスとして扱う。
type Principal interface {
	// ID はプリンシパルのユーザーIDを返す。匿名の場合は空文字列。
	ID() string
	// Role はプリンシパルのロールを返す。
	Role() Role

	isPrincipal()
}

// Anonymous は未認証の呼び出し元。
type Anonymous struct{}

func (Anonymous) ID() string   { return "" }
func (Anonymous) Role() Role   { return RoleAnonymous }
func (Anonymous) isPrincipal() {}

// UserPrincipal は一般ユーザー。Verified が false の場合は変更系操作を行えない。
type UserPrincipal struct {
	UserID   string
	Verified bool
}

func (p UserPrincipal) ID() string { return p.UserID }
func (UserPrincipal) Role() Role   { return RoleUser }
func (UserPrincipal) isPrincipal() {}

// AdminPrincipal は管理者。
type AdminPrincipal struct {
	UserID string
}

func (p AdminPrincipal) ID() string { return p.UserID }
func (AdminPrincipal) Role() Role   { return RoleAdmin }
func (AdminPrincipal) isPrincipal() {}

// NewPrincipal は外部のIDソースから得た属性をPrincipalに変換する。
// userIDが空、またはロールが不明な場合はAnonymousを返す。
func NewPrincipal(userID string, role Role, verified bool) Principal {
	if userID == "" {
		return Anonymous{}
	}
	switch role {
	case RoleAdmin:
		return AdminPrincipal{UserID: userID}
	case RoleUser:
		return UserPrincipal{UserID: userID, Verified: verified}
	default:
		return Anonymous{}
	}
}

// IsAdmin はプリンシパルが管理者かどうかを返す。
func IsAdmin(p Principal) bool {
	_, ok := p.(AdminPrincipal)
	return ok
}
