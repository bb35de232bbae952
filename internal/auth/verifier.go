// Package auth はBearerトークンの検証とアカウント作成（サインアップ）を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/supabase"
)

// トークン検証エラー
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Identity は検証済みトークンの持ち主を表す。
type Identity struct {
	UserID    string     `json:"userId"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	ExpiresAt time.Time  `json:"expiresAt,omitzero"`
}

// IsAdmin は管理者ロールかを返す。
func (i *Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// CanAccess は指定ユーザーのリソースにアクセスできるか（本人または管理者）を返す。
func (i *Identity) CanAccess(userID string) bool {
	return i.UserID == userID || i.IsAdmin()
}

// TokenVerifier はBearerトークンを検証し、持ち主を返す。
// 無効なトークンにはErrTokenExpiredまたはErrTokenInvalidを返す。
// それ以外のエラーは検証基盤の障害を表す。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// UserGetter は認証プロバイダーからトークンの持ち主を取得するインターフェース。
// supabase.Clientが満たす。
type UserGetter interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// ProviderVerifier は認証プロバイダーの /user エンドポイントでトークンを検証する。
type ProviderVerifier struct {
	users UserGetter
}

// NewProviderVerifier はProviderVerifierを生成する。
func NewProviderVerifier(users UserGetter) *ProviderVerifier {
	return &ProviderVerifier{users: users}
}

// Verify はトークンを検証する。
// ロールはuser_metadata.roleから取得し、未設定の場合はleadとする。
func (v *ProviderVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	user, err := v.users.GetUser(ctx, token)
	if err != nil {
		if supabase.IsAuthError(err) {
			if strings.Contains(strings.ToLower(err.Error()), "expired") {
				return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return nil, fmt.Errorf("failed to verify token with auth provider: %w", err)
	}

	return &Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   roleOrDefault(user.MetadataString("role")),
	}, nil
}

func roleOrDefault(role string) model.Role {
	if role == "" {
		return model.RoleLead
	}
	return model.Role(role)
}

// compile-time interface check
var _ TokenVerifier = (*ProviderVerifier)(nil)
