package model

import "time"

// FTMOStatus はFTMO提出のレビュー状態を表す。
type FTMOStatus string

// レビュー状態
const (
	FTMOStatusPending  FTMOStatus = "pending"
	FTMOStatusApproved FTMOStatus = "approved"
	FTMOStatusRejected FTMOStatus = "rejected"
)

// ProofStatus は証跡URLの到達確認結果を表す。
type ProofStatus string

// 到達確認結果
const (
	ProofStatusUnchecked   ProofStatus = "unchecked"
	ProofStatusReachable   ProofStatus = "reachable"
	ProofStatusUnreachable ProofStatus = "unreachable"
	ProofStatusBlocked     ProofStatus = "blocked"
)

// MaxFTMONotesLength はFTMO提出メモの最大文字数。
const MaxFTMONotesLength = 2000

// FTMOSubmission はトレード実績証明の提出を表す。
type FTMOSubmission struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	ProofURL        string      `json:"proofUrl"`
	Notes           string      `json:"notes"`
	Status          FTMOStatus  `json:"status"`
	ProofStatus     ProofStatus `json:"proofStatus"`
	ProofHTTPStatus int         `json:"proofHttpStatus,omitempty"`
	SubmittedAt     time.Time   `json:"submittedAt"`
	ReviewedAt      *time.Time  `json:"reviewedAt,omitempty"`
	ReviewedBy      string      `json:"reviewedBy,omitempty"`
	ProofCheckedAt  *time.Time  `json:"proofCheckedAt,omitempty"`
}

// IsReviewed はレビュー済み（承認または却下）かを返す。
func (s *FTMOSubmission) IsReviewed() bool {
	return s.Status == FTMOStatusApproved || s.Status == FTMOStatusRejected
}
