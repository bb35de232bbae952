package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/pipnation/internal/metrics"
	"github.com/hitoshi/pipnation/internal/model"
)

// 利用者向けの通知メッセージ。
const (
	msgNetworkError  = "Network issue loading profile. Please retry."
	msgParseError    = "Corrupted profile data received"
	msgNotFound      = "Profile not found yet. Please try refreshing in a moment."
	msgSessionExpire = "Session expired. Please log in again."
	msgAuthAmbiguous = "Temporary auth issue. Please refresh."
	msgServerError   = "Server issue loading profile. Try again later."
	msgUnexpected    = "Unexpected error loading profile"
)

// ProfileGetter はプロフィールAPIの呼び出しインターフェース。APIClientが満たす。
type ProfileGetter interface {
	GetProfile(ctx context.Context, userID, token string) (*Response, error)
}

// ProviderSignOut は認証プロバイダー側のセッションを破棄する。supabase.Clientが満たす。
type ProviderSignOut interface {
	SignOut(ctx context.Context, accessToken string) error
}

// FetchRequest はプロフィール取得の入力。
type FetchRequest struct {
	UserID string
	Token  string
	// Silent がtrueの場合、失敗はログのみで通知しない（起動時のセッション復元用）。
	Silent bool
}

// ProfileFetcher は再試行テーブルに従ってプロフィールを取得し、結果をAppStateに反映する。
// 同時に実行できる取得は1つだけで、実行中の呼び出しは破棄される。
type ProfileFetcher struct {
	api      ProfileGetter
	sessions *SessionStore
	provider ProviderSignOut
	state    *AppState
	notifier Notifier
	recorder metrics.FetchRecorder
	logger   *slog.Logger

	policies map[Outcome]RetryPolicy
	sleep    func(ctx context.Context, d time.Duration) error
	inFlight atomic.Bool
}

// NewProfileFetcher はProfileFetcherを生成する。recorderはnilでもよい。
func NewProfileFetcher(
	api ProfileGetter,
	sessions *SessionStore,
	provider ProviderSignOut,
	state *AppState,
	notifier Notifier,
	recorder metrics.FetchRecorder,
	logger *slog.Logger,
) *ProfileFetcher {
	return &ProfileFetcher{
		api:      api,
		sessions: sessions,
		provider: provider,
		state:    state,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		policies: DefaultPolicies(),
		sleep:    sleepContext,
	}
}

// InFlight は取得処理が実行中かを返す。
func (f *ProfileFetcher) InFlight() bool {
	return f.inFlight.Load()
}

// Fetch はプロフィールを取得し、最終的な結果分類を返す。エラーは返さない。
//
// 開始時のセッション世代を記録し、応答や待機の後に世代が進んでいれば結果を破棄してOutcomeStaleを返す。
// 再試行回数は分類をまたいで通算する。
func (f *ProfileFetcher) Fetch(ctx context.Context, req FetchRequest) Outcome {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.logger.Debug("プロフィール取得が実行中のため呼び出しを破棄しました", slog.String("user_id", req.UserID))
		f.record(OutcomeSkipped)
		return OutcomeSkipped
	}
	defer f.inFlight.Store(false)

	generation := f.sessions.Generation()

	for retry := 0; ; retry++ {
		resp, err := f.api.GetProfile(ctx, req.UserID, req.Token)
		if ctx.Err() != nil {
			f.record(OutcomeCanceled)
			return OutcomeCanceled
		}
		if f.sessions.Generation() != generation {
			f.logger.Info("セッションが切り替わったため取得結果を破棄しました",
				slog.String("user_id", req.UserID),
				slog.Int("attempt", retry+1),
			)
			f.record(OutcomeStale)
			return OutcomeStale
		}

		outcome, profile, detail := f.evaluate(req.UserID, resp, err)
		f.record(outcome)

		if outcome == OutcomeSuccess {
			view := f.state.ShowProfile(profile)
			f.logger.Info("プロフィールを取得しました",
				slog.String("user_id", req.UserID),
				slog.Int("attempt", retry+1),
				slog.String("role", string(profile.Role)),
				slog.String("view", string(view)),
			)
			return OutcomeSuccess
		}

		policy, ok := f.policies[outcome]
		if ok && retry < policy.MaxRetries {
			delay := policy.Delay(retry)
			f.logger.Warn("プロフィール取得に失敗したため再試行します",
				slog.String("user_id", req.UserID),
				slog.Int("attempt", retry+1),
				slog.String("outcome", string(outcome)),
				slog.String("detail", detail),
				slog.Int64("delay_ms", delay.Milliseconds()),
			)
			if f.recorder != nil {
				f.recorder.RecordRetryDelay(delay)
			}
			if err := f.sleep(ctx, delay); err != nil {
				f.record(OutcomeCanceled)
				return OutcomeCanceled
			}
			if f.sessions.Generation() != generation {
				f.record(OutcomeStale)
				return OutcomeStale
			}
			continue
		}

		f.finish(ctx, req, outcome, retry+1, detail)
		return outcome
	}
}

// evaluate は1回分の応答を分類し、成功時はプロフィールを返す。
func (f *ProfileFetcher) evaluate(userID string, resp *Response, err error) (Outcome, *model.UserProfile, string) {
	if err != nil {
		return OutcomeNetworkError, nil, err.Error()
	}

	outcome := Classify(resp.Status, resp.Body)
	if outcome != OutcomeSuccess {
		_, message := parseErrorBody(resp.Body)
		return outcome, nil, fmt.Sprintf("status %d: %s", resp.Status, message)
	}

	profile, perr := decodeProfile(resp.Body, userID)
	if perr != nil {
		return OutcomeParseError, nil, perr.Error()
	}
	return OutcomeSuccess, profile, ""
}

// decodeProfile はボディをプロフィールとして解釈し、要求したユーザーのものかを確認する。
func decodeProfile(body []byte, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if p.UserID == "" {
		return nil, errors.New("profile has no userId")
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("profile userId %q does not match session user %q", p.UserID, userID)
	}
	return &p, nil
}

// finish は再試行しない結果を処理する。セッションを破棄するのは確定した認証失敗のみ。
func (f *ProfileFetcher) finish(ctx context.Context, req FetchRequest, outcome Outcome, attempts int, detail string) {
	f.logger.Error("プロフィール取得を終了しました",
		slog.String("user_id", req.UserID),
		slog.Int("attempt", attempts),
		slog.String("outcome", string(outcome)),
		slog.String("detail", detail),
		slog.Bool("silent", req.Silent),
	)

	if outcome == OutcomeAuthConfirmed {
		if f.provider != nil {
			if err := f.provider.SignOut(ctx, req.Token); err != nil {
				f.logger.Warn("認証プロバイダーのサインアウトに失敗しました", slog.String("error", err.Error()))
			}
		}
		f.sessions.SignOut()
		f.state.Clear()
	}

	if req.Silent {
		return
	}
	f.notifier.Error(failureMessage(outcome))
}

func (f *ProfileFetcher) record(outcome Outcome) {
	if f.recorder != nil {
		f.recorder.RecordFetchAttempt(string(outcome))
	}
}

// failureMessage は結果分類に対応する通知メッセージを返す。
func failureMessage(outcome Outcome) string {
	switch outcome {
	case OutcomeNetworkError:
		return msgNetworkError
	case OutcomeParseError:
		return msgParseError
	case OutcomeNotFound:
		return msgNotFound
	case OutcomeAuthConfirmed:
		return msgSessionExpire
	case OutcomeAuthAmbiguous:
		return msgAuthAmbiguous
	case OutcomeServerError:
		return msgServerError
	default:
		return msgUnexpected
	}
}

// sleepContext はdだけ待機する。途中でキャンセルされた場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
