// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに検証済みIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// VerificationRecorder はトークン検証結果を記録するインターフェース。
// metrics.Collectorが満たす。
type VerificationRecorder interface {
	RecordTokenVerification(result string)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みIdentityをリクエストコンテキストに注入する。
// トークンなしは401 MISSING_TOKEN、期限切れは401 TOKEN_EXPIRED、不正は401 TOKEN_INVALID、
// 認証プロバイダー障害は503を返す。recorderはnilでもよい。
func NewBearerAuthMiddleware(verifier auth.TokenVerifier, recorder VerificationRecorder, logger *slog.Logger) func(next http.Handler) http.Handler {
	record := func(result string) {
		if recorder != nil {
			recorder.RecordTokenVerification(result)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. ヘッダーからトークンを取得
			token := bearerToken(r)
			if token == "" {
				record("missing")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			// 2. トークンを検証
			identity, err := verifier.Verify(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrTokenExpired):
				record("expired")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
				return
			case errors.Is(err, auth.ErrTokenInvalid):
				record("invalid")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
				return
			default:
				record("error")
				logger.Error("token verification failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewAuthProviderError())
				return
			}

			// 3. 検証済みIdentityをコンテキストに注入
			record("valid")
			if setter, ok := w.(userIDSetter); ok {
				setter.setUserID(identity.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IdentityFromContext はリクエストコンテキストから検証済みIdentityを取得する。
// Bearer認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*auth.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return nil, false
	}
	return identity, true
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return identity.UserID, true
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
