package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/middleware"
	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/profile"
)

// --- モック定義 ---

// mockSignupService はSignupServiceInterfaceのモック実装。
type mockSignupService struct {
	signupFn func(ctx context.Context, in auth.SignupInput) (*auth.SignupResult, error)
}

func (m *mockSignupService) Signup(ctx context.Context, in auth.SignupInput) (*auth.SignupResult, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return &auth.SignupResult{UserID: "user-1", Email: in.Email, Message: "Signup successful"}, nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	getProfileFn      func(ctx context.Context, requester *auth.Identity, userID string) (*model.UserProfile, error)
	completeLessonFn  func(ctx context.Context, requester *auth.Identity, in profile.LessonCompletion) (*profile.LessonResult, error)
	submitQuizFn      func(ctx context.Context, requester *auth.Identity, in profile.QuizSubmission) (*profile.QuizOutcome, error)
	enrollFn          func(ctx context.Context, requester *auth.Identity, in profile.Enrollment) (*model.UserProfile, error)
	submitFTMOFn      func(ctx context.Context, requester *auth.Identity, in profile.FTMOInput) (*model.FTMOSubmission, error)
	listPendingFTMOFn func(ctx context.Context, requester *auth.Identity) ([]*model.FTMOSubmission, error)
	reviewFTMOFn      func(ctx context.Context, requester *auth.Identity, id string, approved bool) (*model.FTMOSubmission, error)
}

func (m *mockProfileService) GetProfile(ctx context.Context, requester *auth.Identity, userID string) (*model.UserProfile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, requester, userID)
	}
	return nil, model.NewProfileNotFoundError()
}

func (m *mockProfileService) CompleteLesson(ctx context.Context, requester *auth.Identity, in profile.LessonCompletion) (*profile.LessonResult, error) {
	if m.completeLessonFn != nil {
		return m.completeLessonFn(ctx, requester, in)
	}
	return &profile.LessonResult{}, nil
}

func (m *mockProfileService) SubmitQuiz(ctx context.Context, requester *auth.Identity, in profile.QuizSubmission) (*profile.QuizOutcome, error) {
	if m.submitQuizFn != nil {
		return m.submitQuizFn(ctx, requester, in)
	}
	return &profile.QuizOutcome{}, nil
}

func (m *mockProfileService) Enroll(ctx context.Context, requester *auth.Identity, in profile.Enrollment) (*model.UserProfile, error) {
	if m.enrollFn != nil {
		return m.enrollFn(ctx, requester, in)
	}
	return &model.UserProfile{UserID: in.UserID}, nil
}

func (m *mockProfileService) SubmitFTMO(ctx context.Context, requester *auth.Identity, in profile.FTMOInput) (*model.FTMOSubmission, error) {
	if m.submitFTMOFn != nil {
		return m.submitFTMOFn(ctx, requester, in)
	}
	return &model.FTMOSubmission{ID: "sub-1", Status: model.FTMOStatusPending}, nil
}

func (m *mockProfileService) ListPendingFTMO(ctx context.Context, requester *auth.Identity) ([]*model.FTMOSubmission, error) {
	if m.listPendingFTMOFn != nil {
		return m.listPendingFTMOFn(ctx, requester)
	}
	return nil, nil
}

func (m *mockProfileService) ReviewFTMO(ctx context.Context, requester *auth.Identity, id string, approved bool) (*model.FTMOSubmission, error) {
	if m.reviewFTMOFn != nil {
		return m.reviewFTMOFn(ctx, requester, id, approved)
	}
	return &model.FTMOSubmission{ID: id, Status: model.FTMOStatusApproved}, nil
}

// mockRecorder はRecorderのモック実装。記録された値を保持する。
type mockRecorder struct {
	mu            sync.Mutex
	signups       []string
	profileReads  []int
	verifications []string
}

func (m *mockRecorder) RecordSignup(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signups = append(m.signups, result)
}

func (m *mockRecorder) RecordProfileRead(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileReads = append(m.profileReads, status)
}

func (m *mockRecorder) RecordTokenVerification(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, result)
}

// --- ヘルパー ---

// withIdentity はリクエストコンテキストに検証済みIdentityを設定する。
func withIdentity(req *http.Request, userID string, role model.Role) *http.Request {
	ctx := middleware.ContextWithIdentity(req.Context(), &auth.Identity{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// decodeErrorBody はエラーレスポンスのボディを解析する。
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// assertErrorResponse はステータスコードとエラーコードを検証する。
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	body := decodeErrorBody(t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
	if body.Error == "" || body.Error != body.Message {
		t.Errorf("error = %q, message = %q: errorにはmessageと同じ文字列が入るべき", body.Error, body.Message)
	}
}
