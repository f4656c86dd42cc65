// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal はユーザーの属性からPrincipalを生成する。
func (u *User) Principal() Principal {
	if u == nil {
		return Anonymous{}
	}
	return NewPrincipal(u.ID, u.Role, u.Verified)
}

// Contact はユーザーの連絡先を返す。
func (u *User) Contact() OwnerContact {
	return OwnerContact{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

// Session はユーザーのログインセッションを表す。
// セッションの発行は外部の認証基盤が行い、本サービスは参照と破棄のみ行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
