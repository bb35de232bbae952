package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/supabase"
)

type mockAccountCreator struct {
	createFn       func(ctx context.Context, params supabase.CreateUserParams) (*supabase.User, error)
	hasServiceRole bool
	calls          int
}

func (m *mockAccountCreator) AdminCreateUser(ctx context.Context, params supabase.CreateUserParams) (*supabase.User, error) {
	m.calls++
	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return &supabase.User{ID: "u-1", Email: params.Email}, nil
}

func (m *mockAccountCreator) HasServiceRole() bool {
	return m.hasServiceRole
}

type mockProfileRepo struct {
	saveFn func(ctx context.Context, p *model.UserProfile) error
	saved  []*model.UserProfile
}

func (m *mockProfileRepo) FindByUserID(_ context.Context, _ string) (*model.UserProfile, error) {
	return nil, nil
}

func (m *mockProfileRepo) Save(ctx context.Context, p *model.UserProfile) error {
	if m.saveFn != nil {
		if err := m.saveFn(ctx, p); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, p)
	return nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(s string) string { return s }

func newTestSignupService(accounts AccountCreator, profiles *mockProfileRepo) *SignupService {
	var buf bytes.Buffer
	s := NewSignupService(accounts, profiles, passthroughSanitizer{}, newTestLogger(&buf))
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

func TestSignup_Success_StoresLeadProfile(t *testing.T) {
	accounts := &mockAccountCreator{
		hasServiceRole: true,
		createFn: func(_ context.Context, params supabase.CreateUserParams) (*supabase.User, error) {
			if params.Email != "a@b.com" {
				t.Errorf("Email = %q, want normalized a@b.com", params.Email)
			}
			if params.Metadata["firstName"] != "Ann" || params.Metadata["country"] != "US" {
				t.Errorf("Metadata = %v", params.Metadata)
			}
			if _, ok := params.Metadata["role"]; ok {
				t.Error("クライアント指定のroleはメタデータに含めてはならない")
			}
			return &supabase.User{ID: "u-1"}, nil
		},
	}
	profiles := &mockProfileRepo{}
	s := newTestSignupService(accounts, profiles)

	result, err := s.Signup(context.Background(), SignupInput{
		Email:      " A@B.com ",
		Password:   "secret1",
		FirstName:  "Ann",
		SignupData: map[string]any{"role": "admin", "source": "landing"},
	})
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if result.UserID != "u-1" || result.Email != "a@b.com" {
		t.Errorf("result = %+v", result)
	}

	if len(profiles.saved) != 1 {
		t.Fatalf("saved profiles = %d, want 1", len(profiles.saved))
	}
	p := profiles.saved[0]
	if p.Role != model.RoleLead || p.Badge != model.BadgeNone || p.Country != "US" {
		t.Errorf("初期プロフィールが不正: %+v", p)
	}
	if len(p.Progress) != 4 {
		t.Errorf("progress tracks = %d, want 4", len(p.Progress))
	}
}

func TestSignup_ShortPassword_RejectedBeforeProviderCall(t *testing.T) {
	accounts := &mockAccountCreator{hasServiceRole: true}
	s := newTestSignupService(accounts, &mockProfileRepo{})

	_, err := s.Signup(context.Background(), SignupInput{Email: "a@b.com", Password: "12345", FirstName: "Ann"})
	assertAPIErrorCode(t, err, model.ErrCodeWeakPassword)
	if accounts.calls != 0 {
		t.Errorf("プロバイダー呼び出し回数 = %d, want 0", accounts.calls)
	}
}

func TestSignup_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		in   SignupInput
	}{
		{"email欠落", SignupInput{Password: "secret1", FirstName: "Ann"}},
		{"password欠落", SignupInput{Email: "a@b.com", FirstName: "Ann"}},
		{"firstName欠落", SignupInput{Email: "a@b.com", Password: "secret1", FirstName: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &mockAccountCreator{hasServiceRole: true}
			s := newTestSignupService(accounts, &mockProfileRepo{})

			_, err := s.Signup(context.Background(), tt.in)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
			if accounts.calls != 0 {
				t.Errorf("プロバイダー呼び出し回数 = %d, want 0", accounts.calls)
			}
		})
	}
}

func TestSignup_WithoutServiceRole_Misconfigured(t *testing.T) {
	s := newTestSignupService(nil, &mockProfileRepo{})
	_, err := s.Signup(context.Background(), SignupInput{Email: "a@b.com", Password: "secret1", FirstName: "Ann"})
	assertAPIErrorCode(t, err, model.ErrCodeServerMisconfigured)

	s = newTestSignupService(&mockAccountCreator{hasServiceRole: false}, &mockProfileRepo{})
	_, err = s.Signup(context.Background(), SignupInput{Email: "a@b.com", Password: "secret1", FirstName: "Ann"})
	assertAPIErrorCode(t, err, model.ErrCodeServerMisconfigured)
}

func TestSignup_ProviderRejects_ReturnsProviderMessage(t *testing.T) {
	accounts := &mockAccountCreator{
		hasServiceRole: true,
		createFn: func(_ context.Context, _ supabase.CreateUserParams) (*supabase.User, error) {
			return nil, &supabase.Error{Status: http.StatusUnprocessableEntity, Code: "email_exists", Message: "User already registered"}
		},
	}
	profiles := &mockProfileRepo{}
	s := newTestSignupService(accounts, profiles)

	_, err := s.Signup(context.Background(), SignupInput{Email: "a@b.com", Password: "secret1", FirstName: "Ann"})
	assertAPIErrorCode(t, err, model.ErrCodeSignupRejected)

	var apiErr *model.APIError
	errors.As(err, &apiErr)
	if apiErr.Message != "User already registered" {
		t.Errorf("Message = %q, プロバイダーのメッセージをそのまま返すべき", apiErr.Message)
	}
	if len(profiles.saved) != 0 {
		t.Error("アカウント作成失敗時にプロフィールを保存してはならない")
	}
}

func TestSignup_ProviderUnavailable(t *testing.T) {
	accounts := &mockAccountCreator{
		hasServiceRole: true,
		createFn: func(_ context.Context, _ supabase.CreateUserParams) (*supabase.User, error) {
			return nil, errors.New("connection reset")
		},
	}
	s := newTestSignupService(accounts, &mockProfileRepo{})

	_, err := s.Signup(context.Background(), SignupInput{Email: "a@b.com", Password: "secret1", FirstName: "Ann"})
	assertAPIErrorCode(t, err, model.ErrCodeAuthProviderFailure)
}

func TestSignup_ProfileStoreFails(t *testing.T) {
	accounts := &mockAccountCreator{hasServiceRole: true}
	profiles := &mockProfileRepo{
		saveFn: func(_ context.Context, _ *model.UserProfile) error { return errors.New("db down") },
	}
	s := newTestSignupService(accounts, profiles)

	_, err := s.Signup(context.Background(), SignupInput{Email: "a@b.com", Password: "secret1", FirstName: "Ann"})
	assertAPIErrorCode(t, err, model.ErrCodeProfileStoreFailed)
}

func TestValidateSignup_CountsRunesNotBytes(t *testing.T) {
	// 6文字のマルチバイトパスワードは有効
	if _, apiErr := ValidateSignup(SignupInput{Email: "a@b.com", Password: "ひみつのあいこ", FirstName: "Ann"}); apiErr != nil {
		t.Errorf("6文字以上のパスワードは有効であるべき: %v", apiErr)
	}
	// 5文字（15バイト）は無効
	if _, apiErr := ValidateSignup(SignupInput{Email: "a@b.com", Password: "ひみつのあ", FirstName: "Ann"}); apiErr == nil {
		t.Error("5文字のパスワードは無効であるべき")
	}
}
