package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/supabase"
)

// ErrNoSession は認証プロバイダーがセッションを返さなかったことを表す。
var ErrNoSession = errors.New("auth provider returned no session")

// ErrNotSignedIn はサインインが必要な操作をセッションなしで呼び出したことを表す。
var ErrNotSignedIn = errors.New("not signed in")

// AuthProvider はクライアントが使う認証プロバイダーの操作。supabase.Clientが満たす。
type AuthProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// AcademyAPI はプロフィール取得以外のAPI操作。APIClientが満たす。
type AcademyAPI interface {
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	CompleteLesson(ctx context.Context, token string, req LessonRequest) (*LessonResult, error)
	SubmitQuiz(ctx context.Context, token string, req QuizRequest) (*QuizResult, error)
	SubmitFTMO(ctx context.Context, token string, req FTMORequest) (*FTMOReceipt, error)
	Enroll(ctx context.Context, token string, req EnrollRequest) (*model.UserProfile, error)
}

// LessonInput はレッスン完了操作の入力。QuizScoreがある場合は同じIDでクイズも提出する。
type LessonInput struct {
	CourseLevel string
	LessonID    string
	QuizScore   *int
}

// Academy はサインアップからコース受講までの利用者操作をまとめたコントローラー。
type Academy struct {
	api      AcademyAPI
	provider AuthProvider
	sessions *SessionStore
	state    *AppState
	fetcher  *ProfileFetcher
	notifier Notifier
	logger   *slog.Logger

	settleDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewAcademy はAcademyを生成する。settleDelayはサインアップ後にサインインするまでの待機時間。
func NewAcademy(
	api AcademyAPI,
	provider AuthProvider,
	sessions *SessionStore,
	state *AppState,
	fetcher *ProfileFetcher,
	notifier Notifier,
	logger *slog.Logger,
	settleDelay time.Duration,
) *Academy {
	return &Academy{
		api:         api,
		provider:    provider,
		sessions:    sessions,
		state:       state,
		fetcher:     fetcher,
		notifier:    notifier,
		logger:      logger,
		settleDelay: settleDelay,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// State は表示状態を返す。
func (a *Academy) State() *AppState {
	return a.state
}

// SignUp はアカウントを作成し、反映を待ってからサインインしてプロフィールを取得する。
func (a *Academy) SignUp(ctx context.Context, req SignupRequest) error {
	if req.FirstName == "" {
		req.FirstName, _, _ = strings.Cut(req.Email, "@")
	}
	if req.Country == "" {
		req.Country = model.DefaultCountry
	}

	result, err := a.api.Signup(ctx, req)
	if err != nil {
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && isAlreadyRegistered(apiErr.Message):
			a.notifier.Error("This email is already registered. Please log in instead.")
		case errors.As(err, &apiErr) && apiErr.Message != "":
			a.notifier.Error(apiErr.Message)
		default:
			a.notifier.Error("Signup failed")
		}
		return err
	}
	a.logger.Info("account created", slog.String("user_id", result.UserID))
	a.notifier.Success("Account created successfully!")

	if err := a.sleep(ctx, a.settleDelay); err != nil {
		return err
	}

	ps, err := a.provider.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		a.notifier.Error(fmt.Sprintf("Account created! Please try logging in manually. Error: %s", providerMessage(err)))
		return fmt.Errorf("auto sign-in failed: %w", err)
	}
	if ps == nil || ps.AccessToken == "" {
		a.notifier.Error("Account created! Please log in manually.")
		return ErrNoSession
	}

	session := a.sessionFrom(ps)
	a.sessions.SignIn(session)
	a.fetcher.Fetch(ctx, FetchRequest{UserID: session.UserID, Token: session.AccessToken})
	a.notifier.Success("Welcome to Pip Nation Academy!")
	return nil
}

// LogIn はメールアドレスとパスワードでサインインしてプロフィールを取得する。
func (a *Academy) LogIn(ctx context.Context, email, password string) error {
	ps, err := a.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		msg := providerMessage(err)
		if msg == "" {
			msg = "Invalid email or password"
		}
		a.notifier.Error(msg)
		return fmt.Errorf("sign in failed: %w", err)
	}
	if ps == nil || ps.AccessToken == "" || ps.User.ID == "" {
		a.notifier.Error("Sign in failed - no session created")
		return ErrNoSession
	}

	session := a.sessionFrom(ps)
	a.sessions.SignIn(session)
	a.fetcher.Fetch(ctx, FetchRequest{UserID: session.UserID, Token: session.AccessToken})
	a.notifier.Success("Welcome back!")
	return nil
}

// LogOut はプロバイダーからサインアウトし、ローカルの状態を破棄する。
// プロバイダー側の失敗はログのみで、ローカルの破棄は必ず行う。
func (a *Academy) LogOut(ctx context.Context) {
	if session, ok := a.sessions.Current(); ok {
		if err := a.provider.SignOut(ctx, session.AccessToken); err != nil {
			a.logger.Warn("provider sign-out failed", slog.String("error", err.Error()))
		}
	}
	a.sessions.SignOut()
	a.state.Clear()
	a.notifier.Success("Logged out successfully")
}

// RestoreSession は保存済みセッションを復元し、通知なしでプロフィールを取得する。
// アクセストークンが期限切れでリフレッシュトークンがある場合は先に更新する。
func (a *Academy) RestoreSession(ctx context.Context) (Outcome, bool) {
	session, ok, err := a.sessions.Restore()
	if err != nil {
		a.logger.Warn("session restore failed", slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}

	if session.Expired(a.now()) && session.RefreshToken != "" {
		if err := a.RefreshSession(ctx); err != nil {
			return "", false
		}
		session, _ = a.sessions.Current()
	}

	return a.fetcher.Fetch(ctx, FetchRequest{UserID: session.UserID, Token: session.AccessToken, Silent: true}), true
}

// RefreshSession はリフレッシュトークンでアクセストークンを更新する。
// プロバイダーが認証エラーを返した場合はセッションを破棄する。
func (a *Academy) RefreshSession(ctx context.Context) error {
	session, ok := a.sessions.Current()
	if !ok {
		return ErrNotSignedIn
	}
	if session.RefreshToken == "" {
		return errors.New("session has no refresh token")
	}

	ps, err := a.provider.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		if supabase.IsAuthError(err) || supabase.IsClientError(err) {
			a.logger.Warn("refresh token rejected, signing out", slog.String("error", err.Error()))
			a.sessions.SignOut()
			a.state.Clear()
		}
		return fmt.Errorf("token refresh failed: %w", err)
	}
	if ps == nil || ps.AccessToken == "" {
		return ErrNoSession
	}

	refreshed := a.sessionFrom(ps)
	if refreshed.UserID == "" {
		refreshed.UserID = session.UserID
	}
	a.sessions.RefreshToken(refreshed)
	return nil
}

// RefreshProfile は現在のセッションでプロフィールを再取得する。
func (a *Academy) RefreshProfile(ctx context.Context) (Outcome, error) {
	session, ok := a.sessions.Current()
	if !ok {
		return "", ErrNotSignedIn
	}
	return a.fetcher.Fetch(ctx, FetchRequest{UserID: session.UserID, Token: session.AccessToken}), nil
}

// CompleteLesson はレッスン完了を記録し、必要ならクイズを提出してからプロフィールを再取得する。
func (a *Academy) CompleteLesson(ctx context.Context, in LessonInput) (*QuizResult, error) {
	session, ok := a.signedInWithProfile()
	if !ok {
		return nil, ErrNotSignedIn
	}

	if _, err := a.api.CompleteLesson(ctx, session.AccessToken, LessonRequest{
		UserID:      session.UserID,
		CourseLevel: in.CourseLevel,
		LessonID:    in.LessonID,
	}); err != nil {
		a.notifier.Error("Failed to save progress")
		return nil, err
	}
	a.notifier.Success("Lesson completed!")

	var quiz *QuizResult
	if in.QuizScore != nil {
		result, err := a.api.SubmitQuiz(ctx, session.AccessToken, QuizRequest{
			UserID:      session.UserID,
			QuizID:      in.LessonID,
			Score:       *in.QuizScore,
			CourseLevel: in.CourseLevel,
		})
		if err != nil {
			a.logger.Warn("quiz submission failed", slog.String("error", err.Error()))
		} else {
			quiz = result
			if result.AdvancedUnlocked {
				a.notifier.Success("Advanced Course Unlocked!")
			}
		}
	}

	a.fetcher.Fetch(ctx, FetchRequest{UserID: session.UserID, Token: session.AccessToken})
	return quiz, nil
}

// SubmitFTMO はFTMO実績証明を提出する。
func (a *Academy) SubmitFTMO(ctx context.Context, proofURL, notes string) (*FTMOReceipt, error) {
	session, ok := a.signedInWithProfile()
	if !ok {
		return nil, ErrNotSignedIn
	}

	receipt, err := a.api.SubmitFTMO(ctx, session.AccessToken, FTMORequest{
		UserID:   session.UserID,
		ProofURL: proofURL,
		Notes:    notes,
	})
	if err != nil {
		if IsTransportError(err) {
			a.notifier.Error("Submission failed")
		} else {
			a.notifier.Error("Failed to submit FTMO proof")
		}
		return nil, err
	}
	a.notifier.Success("FTMO proof submitted for verification!")
	return receipt, nil
}

// EnrollCourse はコースに受講登録し、プロフィールを再取得してからコース画面へ遷移する。
func (a *Academy) EnrollCourse(ctx context.Context, req EnrollRequest) (View, error) {
	session, ok := a.signedInWithProfile()
	if !ok {
		a.notifier.Error("Please log in to access courses")
		return a.state.View(), ErrNotSignedIn
	}

	req.UserID = session.UserID
	if _, err := a.api.Enroll(ctx, session.AccessToken, req); err != nil {
		a.notifier.Error("Enrollment failed")
		return a.state.View(), err
	}

	a.fetcher.Fetch(ctx, FetchRequest{UserID: session.UserID, Token: session.AccessToken})

	target, err := ParseView(req.CourseID)
	if err != nil {
		target = ViewCourses
	}
	return a.state.Navigate(target), nil
}

// Navigate は要求された画面へ遷移する。
func (a *Academy) Navigate(requested View) View {
	return a.state.Navigate(requested)
}

// signedInWithProfile はセッションとプロフィールが揃っている場合にセッションを返す。
func (a *Academy) signedInWithProfile() (Session, bool) {
	session, ok := a.sessions.Current()
	if !ok || a.state.Profile() == nil {
		return Session{}, false
	}
	return session, true
}

// sessionFrom はプロバイダーのセッションをクライアントのセッションに変換する。
func (a *Academy) sessionFrom(ps *supabase.Session) Session {
	s := Session{
		AccessToken:  ps.AccessToken,
		RefreshToken: ps.RefreshToken,
		UserID:       ps.User.ID,
	}
	switch {
	case ps.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(ps.ExpiresAt, 0).UTC()
	case ps.ExpiresIn > 0:
		s.ExpiresAt = a.now().Add(time.Duration(ps.ExpiresIn) * time.Second).UTC()
	}
	return s
}

// isAlreadyRegistered は登録済みメールアドレスによる拒否かを返す。
func isAlreadyRegistered(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "already registered") ||
		strings.Contains(lower, "already been registered") ||
		strings.Contains(lower, "already exists")
}

// providerMessage は認証プロバイダーのエラーから利用者向けの文言を取り出す。
func providerMessage(err error) string {
	var pe *supabase.Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
