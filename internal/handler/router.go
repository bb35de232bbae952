// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/middleware"
	"github.com/hitoshi/pipnation/internal/model"
)

// ProfileServiceInterface はプロフィール関連ハンドラーが必要とするサービスインターフェース。
// profile.Serviceが満たす。
type ProfileServiceInterface interface {
	ProfileReader
	CourseServiceInterface
	FTMOServiceInterface
}

// Recorder はAPIサーバーが記録するメトリクスのインターフェース。
type Recorder interface {
	UserRecorder
	middleware.VerificationRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     auth.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// マウント先のパスプレフィックス（例: /functions/v1/api-server）
	BasePath string

	// ヘルスチェック
	Health HealthConfig
	DB     Pinger

	// サインアップ
	SignupService SignupServiceInterface

	// プロフィール・コース・FTMO
	ProfileService ProfileServiceInterface

	// メトリクス（nilの場合は記録・公開しない）
	Recorder       Recorder
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS → (BearerAuth → RateLimit(General))
//
// /health、/user/signup、/metrics はBearer認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	var recorder Recorder
	var verificationRecorder middleware.VerificationRecorder
	if deps.Recorder != nil {
		recorder = deps.Recorder
		verificationRecorder = deps.Recorder
	}

	healthHandler := NewHealthHandler(deps.Health, deps.DB)
	userHandler := NewUserHandler(deps.SignupService, deps.ProfileService, recorder)
	courseHandler := NewCourseHandler(deps.ProfileService)
	ftmoHandler := NewFTMOHandler(deps.ProfileService)

	api := func(r chi.Router) {
		r.NotFound(notFound)
		r.MethodNotAllowed(notFound)

		// --- 認証不要のルート ---
		r.Get("/health", healthHandler.Health)
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.SignupMiddleware()).Post("/user/signup", userHandler.Signup)
		} else {
			r.Post("/user/signup", userHandler.Signup)
		}
		r.Get("/user/", userHandler.MissingUserID)
		if deps.MetricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
		}

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: BearerAuth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier, verificationRecorder, deps.Logger))
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.GeneralMiddleware())
			}

			r.Get("/user/{id}", userHandler.GetProfile)

			r.Post("/progress/lesson", courseHandler.CompleteLesson)
			r.Post("/quiz/submit", courseHandler.SubmitQuiz)
			r.Post("/courses/enroll", courseHandler.Enroll)

			r.Post("/ftmo/submit", ftmoHandler.Submit)

			// 管理者権限の判定はサービス層で行う
			r.Route("/admin/ftmo", func(r chi.Router) {
				r.Get("/", ftmoHandler.ListPending)
				r.Post("/{id}/review", ftmoHandler.Review)
			})
		})
	}

	if deps.BasePath != "" {
		r.Route(deps.BasePath, api)
	} else {
		api(r)
	}

	return r
}

// notFound は未定義のルートに統一エラーフォーマットの404を返す。
func notFound(w http.ResponseWriter, r *http.Request) {
	writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
}
