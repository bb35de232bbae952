package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は証跡URL確認とFTMO提出クリーンアップのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	// 続く引数で up（既定）/ down [件数] / version を指定する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	// CommandDiagnose はAPIの稼働状況と保存済みセッションを表示する。
	CommandDiagnose Command = "diagnose"
	// CommandSignup はアカウントを作成してサインインする。
	CommandSignup Command = "signup"
	// CommandLogin はサインインしてプロフィールを表示する。
	CommandLogin Command = "login"
	// CommandLogout は保存済みセッションを破棄する。
	CommandLogout Command = "logout"
	// CommandProfile は保存済みセッションでプロフィールを再取得して表示する。
	CommandProfile Command = "profile"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandServe, CommandMigrate, CommandHealthcheck,
		CommandDiagnose, CommandSignup, CommandLogin, CommandLogout, CommandProfile:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// IsClientCommand はAPIクライアントとして動作するサブコマンドかを返す。
// クライアント系はサーバー設定（DATABASE_URL）を必要としない。
func (c Command) IsClientCommand() bool {
	switch c {
	case CommandDiagnose, CommandSignup, CommandLogin, CommandLogout, CommandProfile:
		return true
	default:
		return false
	}
}
