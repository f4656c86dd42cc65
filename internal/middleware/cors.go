package middleware

import "net/http"

// corsExposedHeaders はブラウザのスクリプトから読めるようにするレスポンスヘッダー。
// 作成後の Location、レート制限時の Retry-After、問い合わせ用の X-Request-Id。
var corsExposedHeaders = "Location, Retry-After, " + RequestIDHeader

// NewCORSMiddleware はフロントエンドのオリジン1つだけにcredentials付きのアクセスを許可する。
// それ以外のオリジンにはCORSヘッダーを返さない。プリフライトは204で応答して打ち切る。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")
			if origin != "" && origin == allowedOrigin {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName+", "+RequestIDHeader)
				w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
