// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/confman/internal/model"
)

// DefaultSessionCookieName はセッションCookie名の既定値。
const DefaultSessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	sessionIDContextKey = contextKey("session_id")
)

// PrincipalResolver はセッションIDから呼び出し元を解決する。
// セッションが存在しない、または期限切れの場合は model.Anonymous{} を返すこと。
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, sessionID string) (model.Principal, error)
}

// NewIdentityMiddleware はCookieのセッションIDから呼び出し元を解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証のリクエストも匿名として通過させ、拒否は各ルートのゲートに任せる。
// 解決中にストアが失敗した場合は匿名扱いにせず、エラーレスポンスを返す。
func NewIdentityMiddleware(resolver PrincipalResolver, cookieName string) func(next http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), model.Anonymous{})))
				return
			}

			principal, err := resolver.ResolvePrincipal(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve principal",
					slog.String("error", err.Error()),
				)
				WriteAPIError(w, err)
				return
			}
			if principal == nil {
				principal = model.Anonymous{}
			}

			notePrincipal(r.Context(), principal.ID(), string(principal.Role()))
			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = context.WithValue(ctx, sessionIDContextKey, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// 注入されていない場合は匿名を返す。
func PrincipalFromContext(ctx context.Context) model.Principal {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || p == nil {
		return model.Anonymous{}
	}
	return p
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// SessionIDFromContext はIdentityミドルウェアが読み取ったセッションIDを返す。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}
