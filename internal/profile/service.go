// Package profile はユーザープロフィールの参照・学習進捗・受講登録・FTMO提出のドメインロジックを提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/repository"
	"github.com/hitoshi/pipnation/internal/security"
)

// DefaultPassingScore はクイズ合格点の既定値。
const DefaultPassingScore = 80

// DefaultCurrency は支払い通貨が未指定の場合の値。
const DefaultCurrency = "USD"

// maxPendingList は管理者向けレビュー待ち一覧の最大件数。
const maxPendingList = 200

// TextSanitizer はユーザー入力テキストを無害化するインターフェース。
type TextSanitizer interface {
	Sanitize(s string) string
}

// LessonCompletion はレッスン完了の入力を表す。
type LessonCompletion struct {
	UserID      string
	CourseLevel string
	LessonID    string
}

// LessonResult はレッスン完了後の進捗を表す。
type LessonResult struct {
	CompletedLessons []string                        `json:"completedLessons"`
	Progress         map[string]model.CourseProgress `json:"progress"`
}

// QuizSubmission はクイズ提出の入力を表す。
type QuizSubmission struct {
	UserID      string
	QuizID      string
	Score       int
	CourseLevel string
}

// QuizOutcome はクイズ提出の判定結果を表す。
type QuizOutcome struct {
	Passed           bool `json:"passed"`
	AdvancedUnlocked bool `json:"advancedUnlocked"`
	Score            int  `json:"score"`
	PassingScore     int  `json:"passingScore"`
}

// Enrollment はコース受講登録の入力を表す。
type Enrollment struct {
	UserID    string
	CourseID  string
	Amount    int64
	Currency  string
	Reference string
}

// FTMOInput はFTMO実績証明提出の入力を表す。
type FTMOInput struct {
	UserID   string
	ProofURL string
	Notes    string
}

// Service はプロフィール関連のサービス層。
// 操作はすべて本人または管理者のみ許可する。
type Service struct {
	profiles     repository.ProfileRepository
	submissions  repository.FTMORepository
	urls         security.URLValidator
	sanitizer    TextSanitizer
	passingScore int
	logger       *slog.Logger

	// ユーザー単位の読み込み・更新・保存を直列化する
	locks sync.Map

	now   func() time.Time
	newID func() string
}

// NewService はServiceの新しいインスタンスを生成する。
// passingScoreが0以下の場合はDefaultPassingScoreを使う。
func NewService(
	profiles repository.ProfileRepository,
	submissions repository.FTMORepository,
	urls security.URLValidator,
	sanitizer TextSanitizer,
	passingScore int,
	logger *slog.Logger,
) *Service {
	if passingScore <= 0 || passingScore > 100 {
		passingScore = DefaultPassingScore
	}
	return &Service{
		profiles:     profiles,
		submissions:  submissions,
		urls:         urls,
		sanitizer:    sanitizer,
		passingScore: passingScore,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// GetProfile は指定ユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, requester *auth.Identity, userID string) (*model.UserProfile, error) {
	if err := authorize(requester, userID); err != nil {
		return nil, err
	}
	return s.load(ctx, userID)
}

// CompleteLesson はレッスン完了を記録する。同じレッスンは1回だけ数える。
func (s *Service) CompleteLesson(ctx context.Context, requester *auth.Identity, in LessonCompletion) (*LessonResult, error) {
	if err := authorize(requester, in.UserID); err != nil {
		return nil, err
	}
	in.LessonID = strings.TrimSpace(in.LessonID)
	if in.LessonID == "" {
		return nil, model.NewValidationError("lessonId required")
	}
	if !model.IsKnownCourse(in.CourseLevel) {
		return nil, model.NewInvalidCourseError(in.CourseLevel)
	}

	var result *LessonResult
	err := s.update(ctx, in.UserID, func(p *model.UserProfile) bool {
		changed := p.CompleteLesson(in.CourseLevel, in.LessonID)
		result = &LessonResult{
			CompletedLessons: p.CompletedLessons,
			Progress:         p.Progress,
		}
		return changed
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitQuiz はクイズの得点を記録し、合否と上級トラック解放の有無を返す。
func (s *Service) SubmitQuiz(ctx context.Context, requester *auth.Identity, in QuizSubmission) (*QuizOutcome, error) {
	if err := authorize(requester, in.UserID); err != nil {
		return nil, err
	}
	in.QuizID = strings.TrimSpace(in.QuizID)
	if in.QuizID == "" {
		return nil, model.NewValidationError("quizId required")
	}
	if in.Score < 0 || in.Score > 100 {
		return nil, model.NewInvalidScoreError(in.Score)
	}
	if !model.IsKnownCourse(in.CourseLevel) {
		return nil, model.NewInvalidCourseError(in.CourseLevel)
	}

	outcome := &QuizOutcome{
		Passed:       in.Score >= s.passingScore,
		Score:        in.Score,
		PassingScore: s.passingScore,
	}
	err := s.update(ctx, in.UserID, func(p *model.UserProfile) bool {
		outcome.AdvancedUnlocked = p.RecordQuiz(in.QuizID, model.QuizResult{
			Score:       in.Score,
			Passed:      outcome.Passed,
			CourseLevel: in.CourseLevel,
			SubmittedAt: s.now().UTC(),
		})
		return true
	})
	if err != nil {
		return nil, err
	}

	if outcome.AdvancedUnlocked {
		s.logger.Info("advanced track unlocked", slog.String("user_id", in.UserID))
	}
	return outcome, nil
}

// Enroll はコースの受講登録を行う。leadはstudentに昇格する。
// 登録済みのコースに対しては何もせず現在のプロフィールを返す。
func (s *Service) Enroll(ctx context.Context, requester *auth.Identity, in Enrollment) (*model.UserProfile, error) {
	if err := authorize(requester, in.UserID); err != nil {
		return nil, err
	}
	if !model.IsKnownCourse(in.CourseID) {
		return nil, model.NewInvalidCourseError(in.CourseID)
	}
	if in.Amount < 0 {
		return nil, model.NewValidationError("amount must not be negative")
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}

	var profile *model.UserProfile
	err := s.update(ctx, in.UserID, func(p *model.UserProfile) bool {
		profile = p
		return p.Enroll(model.PaymentRecord{
			ID:        s.newID(),
			CourseID:  in.CourseID,
			Amount:    in.Amount,
			Currency:  in.Currency,
			Reference: strings.TrimSpace(in.Reference),
			PaidAt:    s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("course enrolled",
		slog.String("user_id", in.UserID),
		slog.String("course_id", in.CourseID),
		slog.String("role", string(profile.Role)),
	)
	return profile, nil
}

// SubmitFTMO はFTMO実績証明を審査待ちとして保存する。
// 証跡URLは内部ネットワーク宛てを拒否し、到達確認はワーカーが行う。
func (s *Service) SubmitFTMO(ctx context.Context, requester *auth.Identity, in FTMOInput) (*model.FTMOSubmission, error) {
	if err := authorize(requester, in.UserID); err != nil {
		return nil, err
	}

	// 1. 証跡URLの検証
	proofURL := strings.TrimSpace(in.ProofURL)
	if err := s.urls.ValidateURL(proofURL); err != nil {
		if errors.Is(err, security.ErrBlockedURL) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	// 2. メモの無害化
	notes := s.sanitizer.Sanitize(in.Notes)
	if utf8.RuneCountInString(notes) > model.MaxFTMONotesLength {
		return nil, model.NewValidationError(fmt.Sprintf("notes must be at most %d characters", model.MaxFTMONotesLength))
	}

	// 3. 提出者のプロフィール存在確認
	if _, err := s.load(ctx, in.UserID); err != nil {
		return nil, err
	}

	// 4. 保存
	submission := &model.FTMOSubmission{
		ID:          s.newID(),
		UserID:      in.UserID,
		ProofURL:    proofURL,
		Notes:       notes,
		Status:      model.FTMOStatusPending,
		ProofStatus: model.ProofStatusUnchecked,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, fmt.Errorf("FTMO提出の保存に失敗しました: %w", err)
	}

	s.logger.Info("ftmo proof submitted",
		slog.String("user_id", in.UserID),
		slog.String("submission_id", submission.ID),
	)
	return submission, nil
}

// ListPendingFTMO はレビュー待ちのFTMO提出を返す。管理者のみ。
func (s *Service) ListPendingFTMO(ctx context.Context, requester *auth.Identity) ([]*model.FTMOSubmission, error) {
	if requester == nil || !requester.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	subs, err := s.submissions.ListPending(ctx, maxPendingList)
	if err != nil {
		return nil, fmt.Errorf("レビュー待ち一覧の取得に失敗しました: %w", err)
	}
	if subs == nil {
		subs = []*model.FTMOSubmission{}
	}
	return subs, nil
}

// ReviewFTMO はFTMO提出を承認または却下する。管理者のみ。
// 承認時は提出者のバッジをftmo-verifiedにする。
func (s *Service) ReviewFTMO(ctx context.Context, requester *auth.Identity, submissionID string, approved bool) (*model.FTMOSubmission, error) {
	if requester == nil || !requester.IsAdmin() {
		return nil, model.NewForbiddenError()
	}

	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("FTMO提出の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubmissionNotFoundError(submissionID)
	}
	if sub.IsReviewed() {
		return nil, model.NewSubmissionReviewedError()
	}

	status := model.FTMOStatusRejected
	if approved {
		status = model.FTMOStatusApproved
	}
	reviewedAt := s.now().UTC()

	// pendingの場合のみ書き込むため、同時に行われた別のレビューとは片方だけが成功する
	ok, err := s.submissions.MarkReviewed(ctx, sub.ID, status, requester.UserID, reviewedAt)
	if err != nil {
		return nil, fmt.Errorf("FTMO提出の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewSubmissionReviewedError()
	}
	sub.Status = status
	sub.ReviewedAt = &reviewedAt
	sub.ReviewedBy = requester.UserID

	if approved {
		err := s.update(ctx, sub.UserID, func(p *model.UserProfile) bool {
			if p.Badge == model.BadgeFTMOVerified {
				return false
			}
			p.Badge = model.BadgeFTMOVerified
			return true
		})
		if err != nil {
			s.logger.Error("failed to grant ftmo badge",
				slog.String("submission_id", sub.ID),
				slog.String("user_id", sub.UserID),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
	}

	s.logger.Info("ftmo submission reviewed",
		slog.String("submission_id", sub.ID),
		slog.String("status", string(sub.Status)),
		slog.String("reviewer_id", requester.UserID),
	)
	return sub, nil
}

// authorize は本人または管理者であることを確認する。
func authorize(requester *auth.Identity, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return model.NewMissingUserIDError()
	}
	if requester == nil || !requester.CanAccess(userID) {
		return model.NewForbiddenError()
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID string) (*model.UserProfile, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return p, nil
}

// update はプロフィールを読み込んでmutateを適用し、変更があった場合のみ保存する。
func (s *Service) update(ctx context.Context, userID string, mutate func(p *model.UserProfile) bool) error {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !mutate(p) {
		return nil
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		s.logger.Error("profile store failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewProfileStoreFailedError()
	}
	return nil
}

func (s *Service) lockFor(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
