package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/middleware"
	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/profile"
)

// CourseServiceInterface はコース関連ハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	// CompleteLesson はレッスン完了を記録する。同じレッスンは1回だけ数える。
	CompleteLesson(ctx context.Context, requester *auth.Identity, in profile.LessonCompletion) (*profile.LessonResult, error)
	// SubmitQuiz はクイズの得点を記録し合否を判定する。
	SubmitQuiz(ctx context.Context, requester *auth.Identity, in profile.QuizSubmission) (*profile.QuizOutcome, error)
	// Enroll はコースの受講登録と支払い記録を行う。
	Enroll(ctx context.Context, requester *auth.Identity, in profile.Enrollment) (*model.UserProfile, error)
}

// CourseHandler はレッスン進捗・クイズ・受講登録のHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
	decoder *requestDecoder
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface) *CourseHandler {
	return &CourseHandler{
		service: service,
		decoder: newRequestDecoder(),
	}
}

// lessonRequest はレッスン完了リクエストのボディ。userIdを省略した場合は本人として扱う。
type lessonRequest struct {
	UserID      string `json:"userId" validate:"required"`
	CourseLevel string `json:"courseLevel" validate:"required"`
	LessonID    string `json:"lessonId" validate:"required,max=200"`
}

// quizRequest はクイズ提出リクエストのボディ。得点範囲はサービス層で検証する。
type quizRequest struct {
	UserID      string `json:"userId" validate:"required"`
	QuizID      string `json:"quizId" validate:"required,max=200"`
	Score       int    `json:"score"`
	CourseLevel string `json:"courseLevel" validate:"required"`
}

// enrollRequest は受講登録リクエストのボディ。
type enrollRequest struct {
	UserID    string `json:"userId" validate:"required"`
	CourseID  string `json:"courseId" validate:"required"`
	Amount    int64  `json:"amount" validate:"gte=0"`
	Currency  string `json:"currency" validate:"omitempty,len=3,alpha"`
	Reference string `json:"reference" validate:"max=200"`
}

// CompleteLesson はレッスン完了を記録する。
// POST /progress/lesson
func (h *CourseHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req lessonRequest
	if !decodeForIdentity(h.decoder, w, r, identity, &req, &req.UserID) {
		return
	}

	result, err := h.service.CompleteLesson(r.Context(), identity, profile.LessonCompletion{
		UserID:      req.UserID,
		CourseLevel: req.CourseLevel,
		LessonID:    req.LessonID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SubmitQuiz はクイズ結果を記録する。
// POST /quiz/submit
func (h *CourseHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req quizRequest
	if !decodeForIdentity(h.decoder, w, r, identity, &req, &req.UserID) {
		return
	}

	outcome, err := h.service.SubmitQuiz(r.Context(), identity, profile.QuizSubmission{
		UserID:      req.UserID,
		QuizID:      req.QuizID,
		Score:       req.Score,
		CourseLevel: req.CourseLevel,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// Enroll はコースの受講登録を行い、更新後のプロフィールを返す。
// POST /courses/enroll
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req enrollRequest
	if !decodeForIdentity(h.decoder, w, r, identity, &req, &req.UserID) {
		return
	}

	updated, err := h.service.Enroll(r.Context(), identity, profile.Enrollment{
		UserID:    req.UserID,
		CourseID:  req.CourseID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.Reference,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// decodeForIdentity はボディを読み込み、userIdが空なら呼び出し元のIDで補ってから検証する。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeForIdentity(d *requestDecoder, w http.ResponseWriter, r *http.Request, identity *auth.Identity, dst any, userID *string) bool {
	if apiErr := d.decode(w, r, dst); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return false
	}
	if *userID == "" {
		*userID = identity.UserID
	}
	if apiErr := d.check(dst); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return false
	}
	return true
}

// requireIdentity はBearer認証済みIdentityを取り出す。存在しない場合は401を書き込む。
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
		return nil, false
	}
	return identity, true
}
