package handler

import (
	"context"
	"net/http"
	"time"
)

// healthPingTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthPingTimeout = 2 * time.Second

// Pinger はDB疎通確認のインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthConfig は/healthで公開する設定有無のフラグ。
type HealthConfig struct {
	HasURL         bool
	HasAnonKey     bool
	HasServiceRole bool
}

// HealthHandler はサービス稼働状況を返すハンドラー。
type HealthHandler struct {
	config HealthConfig
	db     Pinger
	now    func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。dbはnilでもよい。
func NewHealthHandler(config HealthConfig, db Pinger) *HealthHandler {
	return &HealthHandler{config: config, db: db, now: time.Now}
}

type healthConfigResponse struct {
	HasURL         bool `json:"hasUrl"`
	HasAnonKey     bool `json:"hasAnonKey"`
	HasServiceRole bool `json:"hasServiceRole"`
	HasDatabase    bool `json:"hasDatabase"`
	Ready          bool `json:"ready"`
}

type healthResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp"`
	Config    healthConfigResponse `json:"config"`
}

// Health は設定の有無と準備状況を返す。常に200を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	hasDatabase := false
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		hasDatabase = h.db.PingContext(ctx) == nil
		cancel()
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Config: healthConfigResponse{
			HasURL:         h.config.HasURL,
			HasAnonKey:     h.config.HasAnonKey,
			HasServiceRole: h.config.HasServiceRole,
			HasDatabase:    hasDatabase,
			Ready:          h.config.HasURL && h.config.HasAnonKey,
		},
	})
}
