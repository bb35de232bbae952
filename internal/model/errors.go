// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, ftmo, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidJSON         = "INVALID_JSON"
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeSignupRejected      = "SIGNUP_REJECTED"
	ErrCodeMissingUserID       = "MISSING_USER_ID"
	ErrCodeMissingToken        = "MISSING_TOKEN"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid        = "TOKEN_INVALID"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"
	ErrCodeProfileStoreFailed  = "PROFILE_STORE_FAILED"
	ErrCodeServerMisconfigured = "SERVER_MISCONFIGURED"
	ErrCodeInvalidCourse       = "INVALID_COURSE"
	ErrCodeInvalidScore        = "INVALID_SCORE"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeSubmissionNotFound  = "SUBMISSION_NOT_FOUND"
	ErrCodeSubmissionReviewed  = "SUBMISSION_ALREADY_REVIEWED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeAuthProviderFailure = "AUTH_PROVIDER_UNAVAILABLE"
)

// NewInvalidJSONError はリクエストボディのJSON解析失敗エラーを生成する。
func NewInvalidJSONError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJSON,
		Message:  "Invalid JSON",
		Category: "validation",
		Action:   "Send a valid JSON request body.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the submitted fields and try again.",
	}
}

// NewWeakPasswordError はパスワード長不足エラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("Password >= %d chars required", minLength),
		Category: "validation",
		Action:   "Choose a longer password.",
	}
}

// NewSignupRejectedError は認証プロバイダーがアカウント作成を拒否した場合のエラーを生成する。
// メッセージはプロバイダーのものをそのまま返す。
func NewSignupRejectedError(providerMessage string) *APIError {
	return &APIError{
		Code:     ErrCodeSignupRejected,
		Message:  providerMessage,
		Category: "auth",
		Action:   "If this email is already registered, log in instead.",
	}
}

// NewMissingUserIDError はパスにユーザーIDが含まれない場合のエラーを生成する。
func NewMissingUserIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingUserID,
		Message:  "Missing userId",
		Category: "validation",
		Action:   "Include the user id in the request path.",
	}
}

// NewMissingTokenError はBearerトークン欠落エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "Missing auth token",
		Category: "auth",
		Action:   "Log in and retry with an Authorization header.",
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "Invalid or expired token",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewTokenInvalidError は不正トークンエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewForbiddenError は他ユーザーのリソースへのアクセス拒否エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Forbidden",
		Category: "auth",
		Action:   "You can only access your own profile.",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found",
		Category: "profile",
		Action:   "Try refreshing in a moment.",
	}
}

// NewProfileStoreFailedError はプロフィール保存失敗エラーを生成する。
func NewProfileStoreFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileStoreFailed,
		Message:  "Profile store failed",
		Category: "system",
		Action:   "Try again later.",
	}
}

// NewServerMisconfiguredError は認証プロバイダー設定不足エラーを生成する。
func NewServerMisconfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeServerMisconfigured,
		Message:  "Server misconfigured",
		Category: "system",
		Action:   "Contact the administrator.",
	}
}

// NewAuthProviderError は認証プロバイダーへの到達失敗エラーを生成する。
func NewAuthProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthProviderFailure,
		Message:  "Auth provider unavailable",
		Category: "system",
		Action:   "Try again later.",
	}
}

// NewInvalidCourseError は未知のコースIDエラーを生成する。
func NewInvalidCourseError(course string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCourse,
		Message:  fmt.Sprintf("Unknown course: %s", course),
		Category: "validation",
		Action:   "Use one of foundation, advanced, beginners, strategy.",
	}
}

// NewInvalidScoreError はクイズスコア範囲外エラーを生成する。
func NewInvalidScoreError(score int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidScore,
		Message:  fmt.Sprintf("Score out of range: %d", score),
		Category: "validation",
		Action:   "Scores must be between 0 and 100.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: "validation",
		Action:   "Enter a URL starting with http:// or https://.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "The proof URL is not allowed by the security policy.",
		Category: "validation",
		Action:   "Use a publicly reachable URL. Private networks are not allowed.",
	}
}

// NewSubmissionNotFoundError はFTMO提出が見つからない場合のエラーを生成する。
func NewSubmissionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionNotFound,
		Message:  fmt.Sprintf("Submission not found: %s", id),
		Category: "ftmo",
		Action:   "Check the submission id.",
	}
}

// NewSubmissionReviewedError はレビュー済みのFTMO提出を再レビューしようとした場合のエラーを生成する。
func NewSubmissionReviewedError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionReviewed,
		Message:  "Submission already reviewed",
		Category: "ftmo",
		Action:   "Reload the pending list.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewNotFoundError は未定義ルートのエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Not found",
		Category: "system",
		Action:   "Check the request path.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal error",
		Category: "system",
		Action:   "Try again later.",
	}
}
