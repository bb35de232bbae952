package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pipnation/internal/client"
	"github.com/hitoshi/pipnation/internal/config"
	"github.com/hitoshi/pipnation/internal/logger"
	"github.com/hitoshi/pipnation/internal/metrics"
	"github.com/hitoshi/pipnation/internal/supabase"
)

// clientRuntime はCLIクライアントの依存関係をまとめたもの。
type clientRuntime struct {
	api      *client.APIClient
	sessions *client.SessionStore
	academy  *client.Academy
	unbind   func()
}

// newClientRuntime はAPIクライアント・認証プロバイダー・セッション保存先をワイヤリングする。
func newClientRuntime(cfg *config.ClientConfig, out io.Writer, logger *slog.Logger, persister client.Persister) *clientRuntime {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	api := client.NewAPIClient(httpClient, logger, cfg.APIBaseURL, cfg.SupabaseAnonKey)
	provider := supabase.NewClient(httpClient, logger, supabase.Config{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
	})

	sessions := client.NewSessionStore(persister, logger)
	state := client.NewAppState()
	unbind := state.Bind(sessions)

	notifier := client.NewWriterNotifier(out)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	fetcher := client.NewProfileFetcher(api, sessions, provider, state, notifier, collector, logger)
	academy := client.NewAcademy(api, provider, sessions, state, fetcher, notifier, logger, cfg.SignupSettleDelay)

	return &clientRuntime{
		api:      api,
		sessions: sessions,
		academy:  academy,
		unbind:   unbind,
	}
}

// runClient はクライアント系サブコマンドを実行する。
// 通知とプロフィールの要約はwに、ログはLOG_LEVEL以上のみwに出力する。
func runClient(ctx context.Context, w io.Writer, cmd Command, args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log := logger.Setup(w, logger.ParseLevel(cfg.LogLevel))

	rt := newClientRuntime(cfg, w, log, client.NewFilePersister(cfg.SessionFile))
	defer rt.unbind()

	switch cmd {
	case CommandDiagnose:
		return rt.diagnose(ctx, w)
	case CommandSignup:
		return rt.signup(ctx, w, args)
	case CommandLogin:
		return rt.login(ctx, w, args)
	case CommandLogout:
		return rt.logout(ctx, w)
	case CommandProfile:
		return rt.profile(ctx, w, args)
	default:
		return fmt.Errorf("unsupported client command %q", cmd)
	}
}

// diagnose はAPIの稼働状況と保存済みセッションの有無を表示する。
func (rt *clientRuntime) diagnose(ctx context.Context, w io.Writer) error {
	health, err := rt.api.Health(ctx)
	if err != nil {
		fmt.Fprintf(w, "api: unreachable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "api: %s (at %s)\n", health.Status, health.Timestamp)
		fmt.Fprintf(w, "  hasUrl=%t hasAnonKey=%t hasServiceRole=%t hasDatabase=%t ready=%t\n",
			health.Config.HasURL, health.Config.HasAnonKey, health.Config.HasServiceRole,
			health.Config.HasDatabase, health.Config.Ready)
	}

	session, ok, rerr := rt.sessions.Restore()
	switch {
	case rerr != nil:
		fmt.Fprintf(w, "session: unreadable (%v)\n", rerr)
	case !ok:
		fmt.Fprintln(w, "session: none")
	default:
		fmt.Fprintf(w, "session: user=%s expired=%t\n", session.UserID, session.Expired(time.Now()))
	}

	if err != nil {
		return fmt.Errorf("api health check failed: %w", err)
	}
	return nil
}

// signup はアカウントを作成し、サインイン後のプロフィールを表示する。
func (rt *clientRuntime) signup(ctx context.Context, w io.Writer, args []string) error {
	fs := flag.NewFlagSet(string(CommandSignup), flag.ContinueOnError)
	fs.SetOutput(w)
	email := fs.String("email", "", "メールアドレス")
	password := fs.String("password", "", "パスワード（未指定時は PIPNATION_PASSWORD）")
	firstName := fs.String("first-name", "", "名前（未指定時はメールアドレスのローカル部）")
	country := fs.String("country", "", "国（未指定時は Unknown）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := rt.academy.SignUp(ctx, client.SignupRequest{
		Email:     strings.TrimSpace(*email),
		Password:  passwordOrEnv(*password),
		FirstName: strings.TrimSpace(*firstName),
		Country:   strings.TrimSpace(*country),
	})
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}
	return printSummary(w, rt.academy.State())
}

// login はサインインしてプロフィールを表示する。
func (rt *clientRuntime) login(ctx context.Context, w io.Writer, args []string) error {
	fs := flag.NewFlagSet(string(CommandLogin), flag.ContinueOnError)
	fs.SetOutput(w)
	email := fs.String("email", "", "メールアドレス")
	password := fs.String("password", "", "パスワード（未指定時は PIPNATION_PASSWORD）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := rt.academy.LogIn(ctx, strings.TrimSpace(*email), passwordOrEnv(*password)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return printSummary(w, rt.academy.State())
}

// logout は保存済みセッションを破棄する。
func (rt *clientRuntime) logout(ctx context.Context, w io.Writer) error {
	if _, ok, err := rt.sessions.Restore(); err != nil || !ok {
		fmt.Fprintln(w, "not signed in")
		return nil
	}
	rt.academy.LogOut(ctx)
	fmt.Fprintln(w, "signed out")
	return nil
}

// profile は保存済みセッションでプロフィールを取得し、指定された画面に遷移する。
func (rt *clientRuntime) profile(ctx context.Context, w io.Writer, args []string) error {
	fs := flag.NewFlagSet(string(CommandProfile), flag.ContinueOnError)
	fs.SetOutput(w)
	viewName := fs.String("view", "", "表示したい画面（dashboard, courses, beginners など）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var requested client.View
	if *viewName != "" {
		v, err := client.ParseView(*viewName)
		if err != nil {
			return err
		}
		requested = v
	}

	outcome, ok := rt.academy.RestoreSession(ctx)
	if !ok {
		return client.ErrNotSignedIn
	}
	if outcome != client.OutcomeSuccess {
		return fmt.Errorf("profile fetch ended with %s", outcome)
	}

	if requested != "" {
		rt.academy.Navigate(requested)
	}
	return printSummary(w, rt.academy.State())
}

// printSummary は現在の画面とプロフィールの要約を表示する。
func printSummary(w io.Writer, state *client.AppState) error {
	p := state.Profile()
	if p == nil {
		return errors.New("profile is not available")
	}

	enrolled := slices.Clone(p.EnrolledCourses)
	slices.Sort(enrolled)

	fmt.Fprintf(w, "view: %s\n", state.View())
	fmt.Fprintf(w, "user: %s <%s>\n", p.UserID, p.Email)
	fmt.Fprintf(w, "name: %s (%s)\n", p.FirstName, p.Country)
	fmt.Fprintf(w, "role: %s\n", p.Role)
	if p.Badge != "" {
		fmt.Fprintf(w, "badge: %s\n", p.Badge)
	}
	if len(enrolled) > 0 {
		fmt.Fprintf(w, "enrolled: %s\n", strings.Join(enrolled, ", "))
	}
	fmt.Fprintf(w, "lessons completed: %d\n", len(p.CompletedLessons))
	fmt.Fprintf(w, "advanced unlocked: %t\n", p.AdvancedUnlocked)
	return nil
}

func passwordOrEnv(password string) string {
	if password != "" {
		return password
	}
	return os.Getenv("PIPNATION_PASSWORD")
}
