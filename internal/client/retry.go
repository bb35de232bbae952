package client

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
)

// Outcome はプロフィール取得1回分（または取得処理全体）の結果分類。
type Outcome string

const (
	// OutcomeSuccess は200かつ正しいプロフィールを受信した。
	OutcomeSuccess Outcome = "success"
	// OutcomeNetworkError は通信レベルの失敗。
	OutcomeNetworkError Outcome = "network_error"
	// OutcomeNotFound はプロフィール未作成（404）。サインアップ直後の反映待ちを想定する。
	OutcomeNotFound Outcome = "not_found"
	// OutcomeAuthAmbiguous は原因を特定できない401/403。
	OutcomeAuthAmbiguous Outcome = "auth_ambiguous"
	// OutcomeAuthConfirmed はトークンの無効・期限切れが確認できた401/403。
	OutcomeAuthConfirmed Outcome = "auth_confirmed"
	// OutcomeServerError は5xx。
	OutcomeServerError Outcome = "server_error"
	// OutcomeParseError は200だがボディをプロフィールとして解釈できない。
	OutcomeParseError Outcome = "parse_error"
	// OutcomeUnexpected は上記以外のステータス。
	OutcomeUnexpected Outcome = "unexpected_status"

	// OutcomeSkipped は別の取得が実行中のため呼び出しを破棄した。
	OutcomeSkipped Outcome = "skipped"
	// OutcomeStale は取得中にセッションが切り替わったため結果を破棄した。
	OutcomeStale Outcome = "stale"
	// OutcomeCanceled はコンテキストのキャンセルで中断した。
	OutcomeCanceled Outcome = "canceled"
)

// RetryPolicy は結果分類ごとの再試行方針。
// Delayのnは0始まりの再試行番号。
type RetryPolicy struct {
	MaxRetries int
	Delay      func(n int) time.Duration
}

// linearDelay は step*(n+1) を返し、limitが正の場合はそれを上限とする。
func linearDelay(step, limit time.Duration) func(n int) time.Duration {
	return func(n int) time.Duration {
		d := step * time.Duration(n+1)
		if limit > 0 && d > limit {
			return limit
		}
		return d
	}
}

// fixedDelay は常にdを返す。
func fixedDelay(d time.Duration) func(n int) time.Duration {
	return func(int) time.Duration { return d }
}

// DefaultPolicies は既定の再試行テーブルを返す。
// テーブルにない分類（確定した認証失敗・パース失敗・想定外ステータス）は再試行しない。
func DefaultPolicies() map[Outcome]RetryPolicy {
	return map[Outcome]RetryPolicy{
		OutcomeNetworkError:  {MaxRetries: 5, Delay: linearDelay(2000*time.Millisecond, 8000*time.Millisecond)},
		OutcomeNotFound:      {MaxRetries: 6, Delay: linearDelay(1000*time.Millisecond, 0)},
		OutcomeAuthAmbiguous: {MaxRetries: 3, Delay: fixedDelay(1500 * time.Millisecond)},
		OutcomeServerError:   {MaxRetries: 4, Delay: linearDelay(1500*time.Millisecond, 0)},
	}
}

// errorEnvelope はAPIのエラーレスポンス。旧形式の {"error": "..."} のみの応答も受け付ける。
type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseErrorBody はエラーレスポンスからコードとメッセージを取り出す。
// JSONでない場合はボディ全体をメッセージとして扱う。
func parseErrorBody(body []byte) (code, message string) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", strings.TrimSpace(string(body))
	}
	message = env.Error
	if message == "" {
		message = env.Message
	}
	return env.Code, message
}

// Classify はHTTPステータスとレスポンスボディを結果分類に変換する。
// 通信失敗とパース失敗はこの関数の対象外。
func Classify(status int, body []byte) Outcome {
	switch {
	case status == http.StatusOK:
		return OutcomeSuccess
	case status == http.StatusNotFound:
		return OutcomeNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code, message := parseErrorBody(body)
		if IsConfirmedAuthFailure(code, message) {
			return OutcomeAuthConfirmed
		}
		return OutcomeAuthAmbiguous
	case status >= 500:
		return OutcomeServerError
	default:
		return OutcomeUnexpected
	}
}

// IsConfirmedAuthFailure はトークン自体が使えないことが確定しているかを返す。
// エラーコードがあればコードで判定し、コードがない応答に限りメッセージ中の
// "invalid" / "expired" を大文字小文字を区別せずに探す。
// MISSING_TOKENはトークンの状態を示さないため確定扱いにしない。
func IsConfirmedAuthFailure(code, message string) bool {
	switch code {
	case model.ErrCodeTokenExpired, model.ErrCodeTokenInvalid:
		return true
	case "":
		lower := strings.ToLower(message)
		return strings.Contains(lower, "invalid") || strings.Contains(lower, "expired")
	default:
		return false
	}
}
