package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/middleware"
	"github.com/hitoshi/pipnation/internal/model"
)

// SignupServiceInterface はサインアップハンドラーが必要とするサービスインターフェース。
type SignupServiceInterface interface {
	// Signup はメール確認済みアカウントとleadロールの初期プロフィールを作成する。
	Signup(ctx context.Context, in auth.SignupInput) (*auth.SignupResult, error)
}

// ProfileReader はプロフィール参照のサービスインターフェース。
type ProfileReader interface {
	GetProfile(ctx context.Context, requester *auth.Identity, userID string) (*model.UserProfile, error)
}

// UserRecorder はユーザー関連のメトリクスを記録するインターフェース。
type UserRecorder interface {
	RecordSignup(result string)
	RecordProfileRead(status int)
}

// UserHandler はサインアップとプロフィール参照のHTTPハンドラー。
type UserHandler struct {
	signup   SignupServiceInterface
	profiles ProfileReader
	recorder UserRecorder
	decoder  *requestDecoder
}

// NewUserHandler はUserHandlerを生成する。recorderはnilでもよい。
func NewUserHandler(signup SignupServiceInterface, profiles ProfileReader, recorder UserRecorder) *UserHandler {
	return &UserHandler{
		signup:   signup,
		profiles: profiles,
		recorder: recorder,
		decoder:  newRequestDecoder(),
	}
}

// signupRequest はサインアップリクエストのボディ。
// 必須項目とパスワード長の検証はサービス層で行う。
type signupRequest struct {
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	FirstName  string         `json:"firstName"`
	Country    string         `json:"country"`
	SignupData map[string]any `json:"signupData"`
}

// Signup はアカウントを作成する。
// POST /user/signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if apiErr := h.decoder.decode(w, r, &req); apiErr != nil {
		h.recordSignup("invalid")
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.signup.Signup(r.Context(), auth.SignupInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		Country:    req.Country,
		SignupData: req.SignupData,
	})
	if err != nil {
		h.recordSignup(signupFailureResult(err))
		handleServiceError(w, err)
		return
	}

	h.recordSignup("created")
	writeJSON(w, http.StatusCreated, result)
}

// GetProfile は指定ユーザーのプロフィールを返す。
// GET /user/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		h.recordProfileRead(http.StatusBadRequest)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingUserIDError())
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.recordProfileRead(http.StatusUnauthorized)
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), identity, userID)
	if err != nil {
		h.recordProfileRead(handleServiceError(w, err))
		return
	}

	h.recordProfileRead(http.StatusOK)
	writeJSON(w, http.StatusOK, profile)
}

// MissingUserID はユーザーIDを含まない/user/へのリクエストに400を返す。
// GET /user/
func (h *UserHandler) MissingUserID(w http.ResponseWriter, r *http.Request) {
	h.recordProfileRead(http.StatusBadRequest)
	writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingUserIDError())
}

func (h *UserHandler) recordSignup(result string) {
	if h.recorder != nil {
		h.recorder.RecordSignup(result)
	}
}

func (h *UserHandler) recordProfileRead(status int) {
	if h.recorder != nil {
		h.recorder.RecordProfileRead(status)
	}
}

// signupFailureResult はサインアップ失敗をメトリクスのラベルに分類する。
func signupFailureResult(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return "error"
	}
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeWeakPassword, model.ErrCodeInvalidJSON:
		return "invalid"
	case model.ErrCodeSignupRejected:
		return "rejected"
	default:
		return "error"
	}
}
