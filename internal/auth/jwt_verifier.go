package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims はSupabaseが発行するアクセストークンのクレーム。
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier はプロジェクトのJWTシークレットでHS256トークンをローカル検証する。
// 認証プロバイダーへの往復を省略できるが、ログアウト済みトークンは有効期限まで通る。
type JWTVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewJWTVerifier はJWTVerifierを生成する。
func NewJWTVerifier(secret string, leeway time.Duration) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), leeway: leeway}
}

// Verify はトークンの署名と有効期限を検証する。
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.leeway > 0 {
		options = append(options, jwt.WithLeeway(v.leeway))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	role, _ := claims.UserMetadata["role"].(string)
	identity := &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   roleOrDefault(role),
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// compile-time interface check
var _ TokenVerifier = (*JWTVerifier)(nil)
