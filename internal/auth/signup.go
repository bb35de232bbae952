package auth

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/repository"
	"github.com/hitoshi/pipnation/internal/supabase"
)

// MinPasswordLength はサインアップ時のパスワード最小文字数。
const MinPasswordLength = 6

// AccountCreator は認証プロバイダーにアカウントを作成するインターフェース。
// supabase.Clientが満たす。
type AccountCreator interface {
	AdminCreateUser(ctx context.Context, params supabase.CreateUserParams) (*supabase.User, error)
	HasServiceRole() bool
}

// TextSanitizer はユーザー入力テキストを無害化するインターフェース。
type TextSanitizer interface {
	Sanitize(s string) string
}

// SignupInput はサインアップの入力を表す。
type SignupInput struct {
	Email      string
	Password   string
	FirstName  string
	Country    string
	SignupData map[string]any
}

// SignupResult はサインアップの結果を表す。
type SignupResult struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SignupService はアカウント作成と初期プロフィール保存を行う。
type SignupService struct {
	accounts  AccountCreator
	profiles  repository.ProfileRepository
	sanitizer TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewSignupService はSignupServiceを生成する。accountsがnilの場合はサーバー設定不足として扱う。
func NewSignupService(
	accounts AccountCreator,
	profiles repository.ProfileRepository,
	sanitizer TextSanitizer,
	logger *slog.Logger,
) *SignupService {
	return &SignupService{
		accounts:  accounts,
		profiles:  profiles,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateSignup は認証プロバイダーを呼ぶ前の入力検証を行い、正規化した入力を返す。
func ValidateSignup(in SignupInput) (SignupInput, *model.APIError) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Country = strings.TrimSpace(in.Country)

	if in.Email == "" || in.Password == "" || in.FirstName == "" {
		return in, model.NewValidationError("email, password, firstName required")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return in, model.NewWeakPasswordError(MinPasswordLength)
	}
	if in.Country == "" {
		in.Country = model.DefaultCountry
	}
	return in, nil
}

// Signup はメール確認済みアカウントを作成し、leadロールの初期プロフィールを保存する。
func (s *SignupService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	// 1. サービスロール設定の確認
	if s.accounts == nil || !s.accounts.HasServiceRole() {
		return nil, model.NewServerMisconfiguredError()
	}

	// 2. 入力検証（リモート呼び出し前）
	in, apiErr := ValidateSignup(in)
	if apiErr != nil {
		return nil, apiErr
	}
	in.FirstName = s.sanitizer.Sanitize(in.FirstName)
	if in.FirstName == "" {
		return nil, model.NewValidationError("email, password, firstName required")
	}

	// 3. アカウント作成
	user, err := s.accounts.AdminCreateUser(ctx, supabase.CreateUserParams{
		Email:    in.Email,
		Password: in.Password,
		Metadata: signupMetadata(in),
	})
	if err != nil {
		var providerErr *supabase.Error
		if errors.As(err, &providerErr) && supabase.IsClientError(err) {
			return nil, model.NewSignupRejectedError(providerErr.Message)
		}
		s.logger.Error("account creation failed",
			slog.String("email_domain", emailDomain(in.Email)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAuthProviderError()
	}

	// 4. 初期プロフィールの保存
	profile := model.NewLeadProfile(user.ID, in.Email, in.FirstName, in.Country, s.now())
	if err := s.profiles.Save(ctx, profile); err != nil {
		s.logger.Error("profile store failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProfileStoreFailedError()
	}

	s.logger.Info("signup completed", slog.String("user_id", user.ID))

	return &SignupResult{
		UserID:  user.ID,
		Email:   in.Email,
		Message: "Signup successful",
	}, nil
}

// signupMetadata はuser_metadataを組み立てる。
// roleは権限判定に使うため、クライアントからの指定は無視する。
func signupMetadata(in SignupInput) map[string]any {
	meta := make(map[string]any, len(in.SignupData)+2)
	maps.Copy(meta, in.SignupData)
	delete(meta, "role")
	meta["firstName"] = in.FirstName
	meta["country"] = in.Country
	return meta
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
