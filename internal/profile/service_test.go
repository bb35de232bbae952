package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/security"
)

// --- モック定義 ---

// memProfileRepo はメモリ上のProfileRepository。
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.UserProfile
	saveErr  error
	saves    int
}

func newMemProfileRepo(profiles ...*model.UserProfile) *memProfileRepo {
	r := &memProfileRepo{profiles: map[string]*model.UserProfile{}}
	for _, p := range profiles {
		r.profiles[p.UserID] = p
	}
	return r
}

func (r *memProfileRepo) FindByUserID(_ context.Context, userID string) (*model.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.CompletedLessons = append([]string(nil), p.CompletedLessons...)
	cp.EnrolledCourses = append([]string(nil), p.EnrolledCourses...)
	cp.PaymentHistory = append([]model.PaymentRecord(nil), p.PaymentHistory...)
	cp.Progress = map[string]model.CourseProgress{}
	for k, v := range p.Progress {
		cp.Progress[k] = v
	}
	cp.QuizScores = map[string]model.QuizResult{}
	for k, v := range p.QuizScores {
		cp.QuizScores[k] = v
	}
	return &cp, nil
}

func (r *memProfileRepo) Save(_ context.Context, p *model.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.profiles[p.UserID] = p
	return nil
}

type mockFTMORepo struct {
	createFn      func(ctx context.Context, s *model.FTMOSubmission) error
	findByIDFn    func(ctx context.Context, id string) (*model.FTMOSubmission, error)
	listPendingFn func(ctx context.Context, limit int) ([]*model.FTMOSubmission, error)
	markFn        func(ctx context.Context, id string, status model.FTMOStatus, reviewedBy string, reviewedAt time.Time) (bool, error)
	created       []*model.FTMOSubmission
}

func (m *mockFTMORepo) Create(ctx context.Context, s *model.FTMOSubmission) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	m.created = append(m.created, s)
	return nil
}

func (m *mockFTMORepo) FindByID(ctx context.Context, id string) (*model.FTMOSubmission, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockFTMORepo) ListPending(ctx context.Context, limit int) ([]*model.FTMOSubmission, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockFTMORepo) ListUncheckedProofs(_ context.Context, _ int) ([]*model.FTMOSubmission, error) {
	return nil, nil
}

func (m *mockFTMORepo) RecordProofResult(_ context.Context, _ string, _ model.ProofStatus, _ int, _ time.Time) (bool, error) {
	return true, nil
}

func (m *mockFTMORepo) MarkReviewed(ctx context.Context, id string, status model.FTMOStatus, reviewedBy string, reviewedAt time.Time) (bool, error) {
	if m.markFn != nil {
		return m.markFn(ctx, id, status, reviewedBy, reviewedAt)
	}
	return true, nil
}

func (m *mockFTMORepo) DeleteReviewedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type tagStripper struct{}

func (tagStripper) Sanitize(s string) string {
	return strings.TrimSpace(strings.NewReplacer("<b>", "", "</b>", "").Replace(s))
}

// --- ヘルパー ---

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(profiles *memProfileRepo, subs *mockFTMORepo) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if subs == nil {
		subs = &mockFTMORepo{}
	}
	s := NewService(profiles, subs, security.NewSSRFGuard(), tagStripper{}, 80, logger)
	s.now = func() time.Time { return testNow }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s
}

func leadProfile(userID string) *model.UserProfile {
	return model.NewLeadProfile(userID, userID+"@example.com", "Ann", "US", testNow)
}

func self(userID string) *auth.Identity {
	return &auth.Identity{UserID: userID, Role: model.RoleLead}
}

func admin() *auth.Identity {
	return &auth.Identity{UserID: "admin-1", Role: model.RoleAdmin}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError(%s), got %T: %v", code, err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- GetProfile ---

func TestGetProfile_AccessControl(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	s := newTestService(repo, nil)

	tests := []struct {
		name      string
		requester *auth.Identity
		userID    string
		wantCode  string
	}{
		{"本人", self("u-1"), "u-1", ""},
		{"管理者", admin(), "u-1", ""},
		{"他人", self("u-2"), "u-1", model.ErrCodeForbidden},
		{"未認証", nil, "u-1", model.ErrCodeForbidden},
		{"userId空", self("u-1"), "", model.ErrCodeMissingUserID},
		{"存在しない（管理者）", admin(), "u-404", model.ErrCodeProfileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.GetProfile(context.Background(), tt.requester, tt.userID)
			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("GetProfile returned error: %v", err)
			}
			if p.UserID != tt.userID {
				t.Errorf("UserID = %q, want %q", p.UserID, tt.userID)
			}
		})
	}
}

func TestGetProfile_RepositoryError_IsNotAPIError(t *testing.T) {
	s := newTestService(newMemProfileRepo(), nil)
	s.profiles = failingProfileRepo{}

	_, err := s.GetProfile(context.Background(), self("u-1"), "u-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("ストレージ障害はAPIErrorにしない（500扱い）: %v", apiErr)
	}
}

type failingProfileRepo struct{}

func (failingProfileRepo) FindByUserID(context.Context, string) (*model.UserProfile, error) {
	return nil, errors.New("connection refused")
}
func (failingProfileRepo) Save(context.Context, *model.UserProfile) error { return nil }

// --- CompleteLesson ---

func TestCompleteLesson_CountsOnce(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	s := newTestService(repo, nil)
	in := LessonCompletion{UserID: "u-1", CourseLevel: model.CourseFoundation, LessonID: "f-1"}

	for i := 0; i < 3; i++ {
		if _, err := s.CompleteLesson(context.Background(), self("u-1"), in); err != nil {
			t.Fatalf("CompleteLesson returned error: %v", err)
		}
	}

	result, err := s.CompleteLesson(context.Background(), self("u-1"), LessonCompletion{
		UserID: "u-1", CourseLevel: model.CourseFoundation, LessonID: "f-2",
	})
	if err != nil {
		t.Fatalf("CompleteLesson returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"f-1", "f-2"}, result.CompletedLessons); diff != "" {
		t.Errorf("CompletedLessons mismatch (-want +got):\n%s", diff)
	}
	if got := result.Progress[model.CourseFoundation].Completed; got != 2 {
		t.Errorf("foundation completed = %d, want 2", got)
	}
	if repo.saves != 2 {
		t.Errorf("saves = %d, 重複完了では保存しないべき", repo.saves)
	}
}

func TestCompleteLesson_Validation(t *testing.T) {
	s := newTestService(newMemProfileRepo(leadProfile("u-1")), nil)

	_, err := s.CompleteLesson(context.Background(), self("u-1"), LessonCompletion{UserID: "u-1", CourseLevel: "crypto", LessonID: "x"})
	assertCode(t, err, model.ErrCodeInvalidCourse)

	_, err = s.CompleteLesson(context.Background(), self("u-1"), LessonCompletion{UserID: "u-1", CourseLevel: model.CourseFoundation})
	assertCode(t, err, model.ErrCodeValidation)

	_, err = s.CompleteLesson(context.Background(), self("u-2"), LessonCompletion{UserID: "u-1", CourseLevel: model.CourseFoundation, LessonID: "x"})
	assertCode(t, err, model.ErrCodeForbidden)
}

func TestCompleteLesson_StoreFailure(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	repo.saveErr = errors.New("disk full")
	s := newTestService(repo, nil)

	_, err := s.CompleteLesson(context.Background(), self("u-1"), LessonCompletion{UserID: "u-1", CourseLevel: model.CourseFoundation, LessonID: "f-1"})
	assertCode(t, err, model.ErrCodeProfileStoreFailed)
}

func TestCompleteLesson_ConcurrentUpdatesAreNotLost(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	s := newTestService(repo, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.CompleteLesson(context.Background(), self("u-1"), LessonCompletion{
				UserID: "u-1", CourseLevel: model.CourseBeginners, LessonID: fmt.Sprintf("b-%d", i),
			})
		}(i)
	}
	wg.Wait()

	p, _ := repo.FindByUserID(context.Background(), "u-1")
	if len(p.CompletedLessons) != 20 {
		t.Errorf("CompletedLessons = %d, want 20", len(p.CompletedLessons))
	}
	if p.Progress[model.CourseBeginners].Completed != 20 {
		t.Errorf("beginners completed = %d, want 20", p.Progress[model.CourseBeginners].Completed)
	}
}

// --- SubmitQuiz ---

func TestSubmitQuiz_PassingFoundationUnlocksAdvancedOnce(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	s := newTestService(repo, nil)

	tests := []struct {
		name         string
		quizID       string
		score        int
		level        string
		wantPassed   bool
		wantUnlocked bool
	}{
		{"不合格", "q-1", 79, model.CourseFoundation, false, false},
		{"合格で解放", "q-1", 80, model.CourseFoundation, true, true},
		{"再合格では再解放しない", "q-2", 95, model.CourseFoundation, true, false},
		{"他トラック合格", "q-3", 100, model.CourseStrategy, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SubmitQuiz(context.Background(), self("u-1"), QuizSubmission{
				UserID: "u-1", QuizID: tt.quizID, Score: tt.score, CourseLevel: tt.level,
			})
			if err != nil {
				t.Fatalf("SubmitQuiz returned error: %v", err)
			}
			if got.Passed != tt.wantPassed || got.AdvancedUnlocked != tt.wantUnlocked {
				t.Errorf("got passed=%v unlocked=%v, want passed=%v unlocked=%v",
					got.Passed, got.AdvancedUnlocked, tt.wantPassed, tt.wantUnlocked)
			}
		})
	}

	p, _ := repo.FindByUserID(context.Background(), "u-1")
	if !p.AdvancedUnlocked {
		t.Error("AdvancedUnlocked should be persisted")
	}
	if p.QuizScores["q-1"].Score != 80 {
		t.Errorf("q-1 score = %d, want 80", p.QuizScores["q-1"].Score)
	}
}

func TestSubmitQuiz_FailedRetakeKeepsPassedResult(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	s := newTestService(repo, nil)
	ctx := context.Background()

	_, _ = s.SubmitQuiz(ctx, self("u-1"), QuizSubmission{UserID: "u-1", QuizID: "q-1", Score: 90, CourseLevel: model.CourseFoundation})
	_, _ = s.SubmitQuiz(ctx, self("u-1"), QuizSubmission{UserID: "u-1", QuizID: "q-1", Score: 10, CourseLevel: model.CourseFoundation})

	p, _ := repo.FindByUserID(ctx, "u-1")
	if r := p.QuizScores["q-1"]; !r.Passed || r.Score != 90 {
		t.Errorf("q-1 = %+v, 合格結果を保持するべき", r)
	}
}

func TestSubmitQuiz_InvalidScore(t *testing.T) {
	s := newTestService(newMemProfileRepo(leadProfile("u-1")), nil)

	for _, score := range []int{-1, 101} {
		_, err := s.SubmitQuiz(context.Background(), self("u-1"), QuizSubmission{
			UserID: "u-1", QuizID: "q-1", Score: score, CourseLevel: model.CourseFoundation,
		})
		assertCode(t, err, model.ErrCodeInvalidScore)
	}
}

// --- Enroll ---

func TestEnroll_PromotesLeadAndIsIdempotent(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	s := newTestService(repo, nil)
	in := Enrollment{UserID: "u-1", CourseID: model.CourseBeginners, Amount: 4900, Currency: "usd", Reference: "pi_123"}

	p, err := s.Enroll(context.Background(), self("u-1"), in)
	if err != nil {
		t.Fatalf("Enroll returned error: %v", err)
	}
	if p.Role != model.RoleStudent {
		t.Errorf("Role = %q, want student", p.Role)
	}
	want := []model.PaymentRecord{{
		ID: "id-1", CourseID: model.CourseBeginners, Amount: 4900, Currency: "USD", Reference: "pi_123", PaidAt: testNow,
	}}
	if diff := cmp.Diff(want, p.PaymentHistory); diff != "" {
		t.Errorf("PaymentHistory mismatch (-want +got):\n%s", diff)
	}

	p, err = s.Enroll(context.Background(), self("u-1"), in)
	if err != nil {
		t.Fatalf("second Enroll returned error: %v", err)
	}
	if len(p.PaymentHistory) != 1 || len(p.EnrolledCourses) != 1 {
		t.Errorf("二重登録で支払い記録を追加してはならない: %+v", p)
	}
	if repo.saves != 1 {
		t.Errorf("saves = %d, want 1", repo.saves)
	}
}

func TestEnroll_AdminStaysAdmin(t *testing.T) {
	p := leadProfile("a-1")
	p.Role = model.RoleAdmin
	s := newTestService(newMemProfileRepo(p), nil)

	got, err := s.Enroll(context.Background(), &auth.Identity{UserID: "a-1", Role: model.RoleAdmin}, Enrollment{UserID: "a-1", CourseID: model.CourseStrategy})
	if err != nil {
		t.Fatalf("Enroll returned error: %v", err)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want admin", got.Role)
	}
	if got.PaymentHistory[0].Currency != DefaultCurrency {
		t.Errorf("Currency = %q, want %q", got.PaymentHistory[0].Currency, DefaultCurrency)
	}
}

func TestEnroll_Validation(t *testing.T) {
	s := newTestService(newMemProfileRepo(leadProfile("u-1")), nil)

	_, err := s.Enroll(context.Background(), self("u-1"), Enrollment{UserID: "u-1", CourseID: "unknown"})
	assertCode(t, err, model.ErrCodeInvalidCourse)

	_, err = s.Enroll(context.Background(), self("u-1"), Enrollment{UserID: "u-1", CourseID: model.CourseBeginners, Amount: -1})
	assertCode(t, err, model.ErrCodeValidation)
}

// --- FTMO ---

func TestSubmitFTMO_StoresPendingSubmission(t *testing.T) {
	subs := &mockFTMORepo{}
	s := newTestService(newMemProfileRepo(leadProfile("u-1")), subs)

	got, err := s.SubmitFTMO(context.Background(), self("u-1"), FTMOInput{
		UserID:   "u-1",
		ProofURL: " https://trader.ftmo.com/certificates/abc ",
		Notes:    "<b>Passed</b> phase 2",
	})
	if err != nil {
		t.Fatalf("SubmitFTMO returned error: %v", err)
	}

	want := &model.FTMOSubmission{
		ID:          "id-1",
		UserID:      "u-1",
		ProofURL:    "https://trader.ftmo.com/certificates/abc",
		Notes:       "Passed phase 2",
		Status:      model.FTMOStatusPending,
		ProofStatus: model.ProofStatusUnchecked,
		SubmittedAt: testNow,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("submission mismatch (-want +got):\n%s", diff)
	}
	if len(subs.created) != 1 {
		t.Errorf("created = %d, want 1", len(subs.created))
	}
}

func TestSubmitFTMO_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		in       FTMOInput
		wantCode string
	}{
		{"内部アドレス", FTMOInput{UserID: "u-1", ProofURL: "http://169.254.169.254/latest"}, model.ErrCodeSSRFBlocked},
		{"localhost", FTMOInput{UserID: "u-1", ProofURL: "http://localhost:8080/"}, model.ErrCodeSSRFBlocked},
		{"不正スキーム", FTMOInput{UserID: "u-1", ProofURL: "javascript:alert(1)"}, model.ErrCodeInvalidURL},
		{"URL空", FTMOInput{UserID: "u-1"}, model.ErrCodeInvalidURL},
		{"メモ長すぎ", FTMOInput{UserID: "u-1", ProofURL: "https://example.com", Notes: strings.Repeat("a", model.MaxFTMONotesLength+1)}, model.ErrCodeValidation},
		{"他人のuserId", FTMOInput{UserID: "u-9", ProofURL: "https://example.com"}, model.ErrCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &mockFTMORepo{}
			s := newTestService(newMemProfileRepo(leadProfile("u-1")), subs)

			_, err := s.SubmitFTMO(context.Background(), self("u-1"), tt.in)
			assertCode(t, err, tt.wantCode)
			if len(subs.created) != 0 {
				t.Error("拒否された提出を保存してはならない")
			}
		})
	}
}

func TestListPendingFTMO_AdminOnly(t *testing.T) {
	subs := &mockFTMORepo{
		listPendingFn: func(_ context.Context, limit int) ([]*model.FTMOSubmission, error) {
			return []*model.FTMOSubmission{{ID: "s-1"}}, nil
		},
	}
	s := newTestService(newMemProfileRepo(), subs)

	_, err := s.ListPendingFTMO(context.Background(), self("u-1"))
	assertCode(t, err, model.ErrCodeForbidden)

	got, err := s.ListPendingFTMO(context.Background(), admin())
	if err != nil {
		t.Fatalf("ListPendingFTMO returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s-1" {
		t.Errorf("got %+v", got)
	}
}

func TestReviewFTMO_ApproveSetsBadge(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	var marked model.FTMOStatus
	subs := &mockFTMORepo{
		findByIDFn: func(_ context.Context, id string) (*model.FTMOSubmission, error) {
			return &model.FTMOSubmission{ID: id, UserID: "u-1", Status: model.FTMOStatusPending}, nil
		},
		markFn: func(_ context.Context, _ string, status model.FTMOStatus, reviewedBy string, _ time.Time) (bool, error) {
			marked = status
			return reviewedBy == "admin-1", nil
		},
	}
	s := newTestService(repo, subs)

	got, err := s.ReviewFTMO(context.Background(), admin(), "s-1", true)
	if err != nil {
		t.Fatalf("ReviewFTMO returned error: %v", err)
	}
	if got.Status != model.FTMOStatusApproved || got.ReviewedBy != "admin-1" || got.ReviewedAt == nil {
		t.Errorf("submission = %+v", got)
	}
	if marked != model.FTMOStatusApproved {
		t.Fatalf("persisted status = %q, want approved", marked)
	}

	p, _ := repo.FindByUserID(context.Background(), "u-1")
	if p.Badge != model.BadgeFTMOVerified {
		t.Errorf("Badge = %q, want %q", p.Badge, model.BadgeFTMOVerified)
	}
}

func TestReviewFTMO_RejectKeepsBadge(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	subs := &mockFTMORepo{
		findByIDFn: func(_ context.Context, id string) (*model.FTMOSubmission, error) {
			return &model.FTMOSubmission{ID: id, UserID: "u-1", Status: model.FTMOStatusPending}, nil
		},
	}
	s := newTestService(repo, subs)

	got, err := s.ReviewFTMO(context.Background(), admin(), "s-1", false)
	if err != nil {
		t.Fatalf("ReviewFTMO returned error: %v", err)
	}
	if got.Status != model.FTMOStatusRejected {
		t.Errorf("Status = %q, want rejected", got.Status)
	}
	if repo.saves != 0 {
		t.Error("却下時はプロフィールを更新しない")
	}
}

func TestReviewFTMO_Errors(t *testing.T) {
	reviewedAt := testNow
	subs := &mockFTMORepo{
		findByIDFn: func(_ context.Context, id string) (*model.FTMOSubmission, error) {
			switch id {
			case "done":
				return &model.FTMOSubmission{ID: id, UserID: "u-1", Status: model.FTMOStatusApproved, ReviewedAt: &reviewedAt}, nil
			default:
				return nil, nil
			}
		},
	}
	s := newTestService(newMemProfileRepo(leadProfile("u-1")), subs)

	_, err := s.ReviewFTMO(context.Background(), self("u-1"), "done", true)
	assertCode(t, err, model.ErrCodeForbidden)

	_, err = s.ReviewFTMO(context.Background(), admin(), "missing", true)
	assertCode(t, err, model.ErrCodeSubmissionNotFound)

	_, err = s.ReviewFTMO(context.Background(), admin(), "done", false)
	assertCode(t, err, model.ErrCodeSubmissionReviewed)
}

func TestReviewFTMO_LosesConcurrentReview(t *testing.T) {
	repo := newMemProfileRepo(leadProfile("u-1"))
	subs := &mockFTMORepo{
		findByIDFn: func(_ context.Context, id string) (*model.FTMOSubmission, error) {
			return &model.FTMOSubmission{ID: id, UserID: "u-1", Status: model.FTMOStatusPending}, nil
		},
		// 読み込み後に別の管理者がレビューを確定した
		markFn: func(context.Context, string, model.FTMOStatus, string, time.Time) (bool, error) {
			return false, nil
		},
	}
	s := newTestService(repo, subs)

	_, err := s.ReviewFTMO(context.Background(), admin(), "s-1", true)
	assertCode(t, err, model.ErrCodeSubmissionReviewed)
	if repo.saves != 0 {
		t.Error("レビューに失敗した場合はバッジを付与しない")
	}
}

func TestReviewFTMO_StoreError(t *testing.T) {
	subs := &mockFTMORepo{
		findByIDFn: func(_ context.Context, id string) (*model.FTMOSubmission, error) {
			return &model.FTMOSubmission{ID: id, UserID: "u-1", Status: model.FTMOStatusPending}, nil
		},
		markFn: func(context.Context, string, model.FTMOStatus, string, time.Time) (bool, error) {
			return false, errors.New("db down")
		},
	}
	s := newTestService(newMemProfileRepo(leadProfile("u-1")), subs)

	if _, err := s.ReviewFTMO(context.Background(), admin(), "s-1", false); err == nil {
		t.Error("保存失敗時はエラーを返すべき")
	}
}

func TestSubmitFTMO_ProfileNotFound(t *testing.T) {
	subs := &mockFTMORepo{}
	s := newTestService(newMemProfileRepo(), subs)

	_, err := s.SubmitFTMO(context.Background(), self("u-9"), FTMOInput{UserID: "u-9", ProofURL: "https://example.com/proof"})
	assertCode(t, err, model.ErrCodeProfileNotFound)
	if len(subs.created) != 0 {
		t.Error("プロフィールがない提出を保存してはならない")
	}
}
