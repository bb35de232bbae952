package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/supabase"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// recordingNotifier は通知内容を記録する。
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) errorMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

func (n *recordingNotifier) successMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}

// sleepRecorder は待機せずに要求された待機時間を記録する。
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func(n int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// mockProfileGetter はProfileGetterのモック。
type mockProfileGetter struct {
	mu           sync.Mutex
	calls        int
	getProfileFn func(ctx context.Context, userID, token string) (*Response, error)
}

func (m *mockProfileGetter) GetProfile(ctx context.Context, userID, token string) (*Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.getProfileFn(ctx, userID, token)
}

func (m *mockProfileGetter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// step はスクリプト化した1回分の応答。
type step struct {
	status int
	body   string
	err    error
}

// sequence は呼び出しごとにstepsを順に返し、使い切った後は最後の応答を繰り返す。
func sequence(steps ...step) func(ctx context.Context, userID, token string) (*Response, error) {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, _, _ string) (*Response, error) {
		mu.Lock()
		s := steps[min(i, len(steps)-1)]
		i++
		mu.Unlock()
		if s.err != nil {
			return nil, &TransportError{Op: "GET /user/u-1", Err: s.err}
		}
		return &Response{Status: s.status, Body: []byte(s.body)}, nil
	}
}

func repeat(s step, n int) []step {
	steps := make([]step, n)
	for i := range steps {
		steps[i] = s
	}
	return steps
}

func profileJSON(t *testing.T, p *model.UserProfile) string {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	return string(data)
}

// mockProvider はAuthProviderとProviderSignOutのモック。
type mockProvider struct {
	mu           sync.Mutex
	signOutCalls []string

	signInFn  func(ctx context.Context, email, password string) (*supabase.Session, error)
	refreshFn func(ctx context.Context, refreshToken string) (*supabase.Session, error)
	signOutFn func(ctx context.Context, accessToken string) error
}

func (m *mockProvider) SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error) {
	return m.signInFn(ctx, email, password)
}

func (m *mockProvider) RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error) {
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockProvider) SignOut(ctx context.Context, accessToken string) error {
	m.mu.Lock()
	m.signOutCalls = append(m.signOutCalls, accessToken)
	m.mu.Unlock()
	if m.signOutFn != nil {
		return m.signOutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockProvider) signOutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signOutCalls)
}

// mockFetchRecorder はmetrics.FetchRecorderのモック。
type mockFetchRecorder struct {
	mu       sync.Mutex
	outcomes []string
	delays   []time.Duration
}

func (m *mockFetchRecorder) RecordFetchAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockFetchRecorder) RecordRetryDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, delay)
}

// mockAcademyAPI はAcademyAPIのモック。
type mockAcademyAPI struct {
	signupFn         func(ctx context.Context, req SignupRequest) (*SignupResult, error)
	completeLessonFn func(ctx context.Context, token string, req LessonRequest) (*LessonResult, error)
	submitQuizFn     func(ctx context.Context, token string, req QuizRequest) (*QuizResult, error)
	submitFTMOFn     func(ctx context.Context, token string, req FTMORequest) (*FTMOReceipt, error)
	enrollFn         func(ctx context.Context, token string, req EnrollRequest) (*model.UserProfile, error)
}

func (m *mockAcademyAPI) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	return m.signupFn(ctx, req)
}

func (m *mockAcademyAPI) CompleteLesson(ctx context.Context, token string, req LessonRequest) (*LessonResult, error) {
	return m.completeLessonFn(ctx, token, req)
}

func (m *mockAcademyAPI) SubmitQuiz(ctx context.Context, token string, req QuizRequest) (*QuizResult, error) {
	return m.submitQuizFn(ctx, token, req)
}

func (m *mockAcademyAPI) SubmitFTMO(ctx context.Context, token string, req FTMORequest) (*FTMOReceipt, error) {
	return m.submitFTMOFn(ctx, token, req)
}

func (m *mockAcademyAPI) Enroll(ctx context.Context, token string, req EnrollRequest) (*model.UserProfile, error) {
	return m.enrollFn(ctx, token, req)
}
