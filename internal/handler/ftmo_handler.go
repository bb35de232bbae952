package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/profile"
)

// FTMOServiceInterface はFTMO実績証明ハンドラーが必要とするサービスインターフェース。
type FTMOServiceInterface interface {
	// SubmitFTMO は証跡URLを検証してレビュー待ちとして保存する。
	SubmitFTMO(ctx context.Context, requester *auth.Identity, in profile.FTMOInput) (*model.FTMOSubmission, error)
	// ListPendingFTMO はレビュー待ちの提出一覧を返す（管理者のみ）。
	ListPendingFTMO(ctx context.Context, requester *auth.Identity) ([]*model.FTMOSubmission, error)
	// ReviewFTMO は提出を承認または却下する（管理者のみ）。
	ReviewFTMO(ctx context.Context, requester *auth.Identity, submissionID string, approved bool) (*model.FTMOSubmission, error)
}

// FTMOHandler はFTMO実績証明の提出とレビューのHTTPハンドラー。
type FTMOHandler struct {
	service FTMOServiceInterface
	decoder *requestDecoder
}

// NewFTMOHandler はFTMOHandlerを生成する。
func NewFTMOHandler(service FTMOServiceInterface) *FTMOHandler {
	return &FTMOHandler{
		service: service,
		decoder: newRequestDecoder(),
	}
}

// ftmoSubmitRequest はFTMO提出リクエストのボディ。URLの安全性はサービス層で検証する。
type ftmoSubmitRequest struct {
	UserID   string `json:"userId" validate:"required"`
	ProofURL string `json:"proofUrl" validate:"required"`
	Notes    string `json:"notes"`
}

// ftmoSubmitResponse はFTMO提出のAPIレスポンス。
type ftmoSubmitResponse struct {
	SubmissionID string           `json:"submissionId"`
	Status       model.FTMOStatus `json:"status"`
}

// reviewRequest はレビューリクエストのボディ。
type reviewRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// pendingListResponse はレビュー待ち一覧のAPIレスポンス。
type pendingListResponse struct {
	Submissions []*model.FTMOSubmission `json:"submissions"`
}

// Submit はFTMO実績証明を提出する。
// POST /ftmo/submit
func (h *FTMOHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req ftmoSubmitRequest
	if !decodeForIdentity(h.decoder, w, r, identity, &req, &req.UserID) {
		return
	}

	sub, err := h.service.SubmitFTMO(r.Context(), identity, profile.FTMOInput{
		UserID:   req.UserID,
		ProofURL: req.ProofURL,
		Notes:    req.Notes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ftmoSubmitResponse{
		SubmissionID: sub.ID,
		Status:       sub.Status,
	})
}

// ListPending はレビュー待ちの提出一覧を返す。
// GET /admin/ftmo
func (h *FTMOHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	subs, err := h.service.ListPendingFTMO(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []*model.FTMOSubmission{}
	}

	writeJSON(w, http.StatusOK, pendingListResponse{Submissions: subs})
}

// Review は提出を承認または却下する。
// POST /admin/ftmo/{id}/review
func (h *FTMOHandler) Review(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if apiErr := h.decoder.decode(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := h.decoder.check(&req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	sub, err := h.service.ReviewFTMO(r.Context(), identity, chi.URLParam(r, "id"), *req.Approved)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}
