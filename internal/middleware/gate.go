package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/confman/internal/gate"
)

// DenialRecorder はゲートによる拒否を記録する。
// metrics.MetricsCollector の部分集合として定義する。
type DenialRecorder interface {
	RecordGateDenial(procedure, gate string)
}

// RequireProcedure はコンテキストの呼び出し元をProcedureのゲート列で検査するミドルウェアを返す。
// 拒否された場合はハンドラーを呼び出さずにエラーレスポンスを返す。
// recorderはnilでもよい。
func RequireProcedure(proc gate.Procedure, recorder DenialRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := PrincipalFromContext(r.Context())
			authorized, err := proc.Authorize(caller)
			if err != nil {
				var d *gate.Denial
				if errors.As(err, &d) {
					slog.Warn("request denied by gate",
						slog.String("procedure", d.Procedure),
						slog.String("gate", d.Gate),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("principal_id", caller.ID()),
					)
					if recorder != nil {
						recorder.RecordGateDenial(d.Procedure, d.Gate)
					}
				}
				WriteAPIError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), authorized)))
		})
	}
}
