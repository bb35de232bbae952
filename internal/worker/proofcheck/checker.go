// Package proofcheck はFTMO提出の証跡URLの到達確認をバックグラウンドで行う。
// スケジューラ、プローブ、結果の分類を含む。
package proofcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
	"github.com/hitoshi/pipnation/internal/repository"
	"github.com/hitoshi/pipnation/internal/security"
)

const (
	defaultMaxConcurrency = 5
	defaultBatchSize      = 100
	maxDrainBytes         = 64 << 10
	userAgent             = "PipNation-ProofCheck/1.0"
)

// HTTPDoer はHTTPリクエストを実行するインターフェース。*http.Clientが満たす。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder は到達確認の結果を記録するインターフェース。
type Recorder interface {
	RecordProofCheck(result string)
}

// Result は1件の到達確認の結果。
type Result struct {
	Status     model.ProofStatus
	HTTPStatus int
}

// Checker は未確認の証跡URLを定期的に取得し、並列数を制限しながら到達確認を行う。
type Checker struct {
	repo           repository.FTMORepository
	urls           security.URLValidator
	client         HTTPDoer
	recorder       Recorder
	logger         *slog.Logger
	maxConcurrency int
	batchSize      int
	now            func() time.Time
}

// NewChecker はCheckerの新しいインスタンスを生成する。
// clientはSSRF対策済みのクライアント（security.SSRFGuard.NewSafeClient）を渡す。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。recorderはnilでもよい。
func NewChecker(
	repo repository.FTMORepository,
	urls security.URLValidator,
	client HTTPDoer,
	recorder Recorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Checker {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Checker{
		repo:           repo,
		urls:           urls,
		client:         client,
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		batchSize:      defaultBatchSize,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーで到達確認を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("証跡URL確認ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", c.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := c.RunOnce(ctx); err != nil {
		c.logger.Error("証跡URL確認サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("証跡URL確認ジョブを停止しました")
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.logger.Error("証跡URL確認サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は未確認の提出を1回取得し、並列で到達確認を実行する。
// semaphoreパターンで最大並列数を制御する。
func (c *Checker) RunOnce(ctx context.Context) error {
	start := time.Now()

	subs, err := c.repo.ListUncheckedProofs(ctx, c.batchSize)
	if err != nil {
		return fmt.Errorf("未確認の提出の取得に失敗しました: %w", err)
	}

	if len(subs) == 0 {
		c.logger.Debug("確認対象の証跡URLはありません")
		return nil
	}

	sem := make(chan struct{}, c.maxConcurrency)
	var wg sync.WaitGroup

	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(s *model.FTMOSubmission) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.checkAndStore(ctx, s); err != nil {
				c.logger.Error("証跡URL確認結果の保存に失敗しました",
					slog.String("submission_id", s.ID),
					slog.String("error", err.Error()),
				)
			}
		}(sub)
	}

	wg.Wait()

	c.logger.Info("証跡URL確認サイクルが完了しました",
		slog.Int("submission_count", len(subs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// checkAndStore は1件を確認し、確認結果のフィールドのみを保存する。
func (c *Checker) checkAndStore(ctx context.Context, sub *model.FTMOSubmission) error {
	result := c.Check(ctx, sub.ProofURL)
	c.record(result.Status)

	c.logger.Info("証跡URLを確認しました",
		slog.String("submission_id", sub.ID),
		slog.String("proof_status", string(result.Status)),
		slog.Int("http_status", result.HTTPStatus),
	)

	// 確認中にレビューされてもstatusは書き換えない
	ok, err := c.repo.RecordProofResult(ctx, sub.ID, result.Status, result.HTTPStatus, c.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Debug("確認中に提出が削除されました", slog.String("submission_id", sub.ID))
	}
	return nil
}

// Check は証跡URLの到達確認を行う。
// SSRF検証に失敗したURLはblocked、2xx/3xxはreachable、それ以外はunreachableとなる。
// HEADが405または501の場合はGETで再確認する。
func (c *Checker) Check(ctx context.Context, proofURL string) Result {
	if err := c.urls.ValidateURL(proofURL); err != nil {
		return Result{Status: model.ProofStatusBlocked}
	}

	status, err := c.fetchStatus(ctx, http.MethodHead, proofURL)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.fetchStatus(ctx, http.MethodGet, proofURL)
	}
	if err != nil {
		c.logger.Warn("証跡URLへの接続に失敗しました",
			slog.String("proof_url", proofURL),
			slog.String("error", err.Error()),
		)
		return Result{Status: model.ProofStatusUnreachable}
	}

	return Result{Status: ClassifyHTTPStatus(status), HTTPStatus: status}
}

// fetchStatus はリクエストを送信し、ステータスコードを返す。
func (c *Checker) fetchStatus(ctx context.Context, method, proofURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, proofURL, nil)
	if err != nil {
		return 0, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return resp.StatusCode, nil
}

func (c *Checker) record(status model.ProofStatus) {
	if c.recorder != nil {
		c.recorder.RecordProofCheck(string(status))
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを到達確認結果に分類する。
func ClassifyHTTPStatus(statusCode int) model.ProofStatus {
	if statusCode >= 200 && statusCode < 400 {
		return model.ProofStatusReachable
	}
	return model.ProofStatusUnreachable
}
