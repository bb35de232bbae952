// Package client はPip Nation AcademyのAPIを利用するクライアント側のセッション・プロフィール同期を提供する。
// トークンストア、再試行テーブル駆動のプロフィール取得、画面遷移の判定を含む。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/model"
)

// maxResponseSize はレスポンスボディの最大読み取りサイズ。
const maxResponseSize = 1 << 20

// userAgent はAPI呼び出し時のUser-Agent。
const userAgent = "PipNation-CLI/1.0"

// APIError はAPIが2xx以外で応答したことを表す。
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// TransportError はレスポンスを受信できなかった通信失敗を表す。
type TransportError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError は通信失敗かを返す。
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Response はステータスとボディをそのまま保持した応答。
type Response struct {
	Status int
	Body   []byte
}

// HealthStatus は GET /health の応答。
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Config    struct {
		HasURL         bool `json:"hasUrl"`
		HasAnonKey     bool `json:"hasAnonKey"`
		HasServiceRole bool `json:"hasServiceRole"`
		HasDatabase    bool `json:"hasDatabase"`
		Ready          bool `json:"ready"`
	} `json:"config"`
}

// SignupRequest は POST /user/signup のリクエスト。
type SignupRequest struct {
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	FirstName  string         `json:"firstName"`
	Country    string         `json:"country"`
	SignupData map[string]any `json:"signupData"`
}

// SignupResult は POST /user/signup の応答。
type SignupResult struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// LessonRequest は POST /progress/lesson のリクエスト。
type LessonRequest struct {
	UserID      string `json:"userId"`
	CourseLevel string `json:"courseLevel"`
	LessonID    string `json:"lessonId"`
}

// LessonResult は POST /progress/lesson の応答。
type LessonResult struct {
	CompletedLessons []string                        `json:"completedLessons"`
	Progress         map[string]model.CourseProgress `json:"progress"`
}

// QuizRequest は POST /quiz/submit のリクエスト。
type QuizRequest struct {
	UserID      string `json:"userId"`
	QuizID      string `json:"quizId"`
	Score       int    `json:"score"`
	CourseLevel string `json:"courseLevel"`
}

// QuizResult は POST /quiz/submit の応答。
type QuizResult struct {
	Passed           bool `json:"passed"`
	AdvancedUnlocked bool `json:"advancedUnlocked"`
	Score            int  `json:"score"`
	PassingScore     int  `json:"passingScore"`
}

// FTMORequest は POST /ftmo/submit のリクエスト。
type FTMORequest struct {
	UserID   string `json:"userId"`
	ProofURL string `json:"proofUrl"`
	Notes    string `json:"notes"`
}

// FTMOReceipt は POST /ftmo/submit の応答。
type FTMOReceipt struct {
	SubmissionID string           `json:"submissionId"`
	Status       model.FTMOStatus `json:"status"`
}

// EnrollRequest は POST /courses/enroll のリクエスト。
type EnrollRequest struct {
	UserID    string `json:"userId"`
	CourseID  string `json:"courseId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// APIClient はPip Nation Academy APIのHTTPクライアント。
type APIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string // サインアップなどユーザートークンを持たない呼び出しに使う公開キー
}

// NewAPIClient はAPIClientを生成する。
func NewAPIClient(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey string) *APIClient {
	return &APIClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
	}
}

// Health はAPIの稼働状況を取得する。
func (c *APIClient) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.call(ctx, http.MethodGet, "/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup はアカウントを作成する。
// 入力検証に失敗した場合は通信を行わずに400相当の*APIErrorを返す。
func (c *APIClient) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	normalized, verr := auth.ValidateSignup(auth.SignupInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		Country:    req.Country,
		SignupData: req.SignupData,
	})
	if verr != nil {
		return nil, &APIError{Status: http.StatusBadRequest, Code: verr.Code, Message: verr.Message}
	}

	body := SignupRequest{
		Email:      normalized.Email,
		Password:   normalized.Password,
		FirstName:  normalized.FirstName,
		Country:    normalized.Country,
		SignupData: normalized.SignupData,
	}
	if body.SignupData == nil {
		body.SignupData = map[string]any{}
	}

	var out SignupResult
	if err := c.call(ctx, http.MethodPost, "/user/signup", c.anonKey, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile はプロフィールを取得し、ステータスとボディをそのまま返す。
// 分類は呼び出し側（ProfileFetcher）が行う。errorは*TransportErrorのみ。
func (c *APIClient) GetProfile(ctx context.Context, userID, token string) (*Response, error) {
	return c.send(ctx, http.MethodGet, "/user/"+url.PathEscape(userID), token, nil)
}

// CompleteLesson はレッスン完了を記録する。
func (c *APIClient) CompleteLesson(ctx context.Context, token string, req LessonRequest) (*LessonResult, error) {
	var out LessonResult
	if err := c.call(ctx, http.MethodPost, "/progress/lesson", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitQuiz はクイズのスコアを提出する。
func (c *APIClient) SubmitQuiz(ctx context.Context, token string, req QuizRequest) (*QuizResult, error) {
	var out QuizResult
	if err := c.call(ctx, http.MethodPost, "/quiz/submit", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFTMO はFTMO実績証明を提出する。
func (c *APIClient) SubmitFTMO(ctx context.Context, token string, req FTMORequest) (*FTMOReceipt, error) {
	var out FTMOReceipt
	if err := c.call(ctx, http.MethodPost, "/ftmo/submit", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enroll はコースの受講登録を行い、更新後のプロフィールを返す。
func (c *APIClient) Enroll(ctx context.Context, token string, req EnrollRequest) (*model.UserProfile, error) {
	var out model.UserProfile
	if err := c.call(ctx, http.MethodPost, "/courses/enroll", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call はリクエストを送信し、2xxの場合はoutにJSONをデコードする。
// 2xx以外は*APIError、通信失敗は*TransportErrorを返す。
func (c *APIClient) call(ctx context.Context, method, path, token string, body, out any) error {
	resp, err := c.send(ctx, method, path, token, body)
	if err != nil {
		return err
	}

	if resp.Status < 200 || resp.Status >= 300 {
		code, message := parseErrorBody(resp.Body)
		if message == "" {
			message = http.StatusText(resp.Status)
		}
		c.logger.Warn("api returned error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.Status),
			slog.String("error_code", code),
		)
		return &APIError{Status: resp.Status, Code: code, Message: message}
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// send はリクエストを送信してボディを読み切る。
func (c *APIClient) send(ctx context.Context, method, path, token string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	c.logger.Debug("api request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return &Response{Status: resp.StatusCode, Body: data}, nil
}
