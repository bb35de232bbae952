package client

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Notifier は利用者向けの通知を表示する。通知の失敗は呼び出し元に返さない。
type Notifier interface {
	Success(message string)
	Error(message string)
}

// WriterNotifier は通知を1行ずつWriterに書き出す。
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier はWriterNotifierを生成する。
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Success は成功通知を書き出す。
func (n *WriterNotifier) Success(message string) {
	n.write("OK", message)
}

// Error はエラー通知を書き出す。
func (n *WriterNotifier) Error(message string) {
	n.write("ERROR", message)
}

func (n *WriterNotifier) write(level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "[%s] %s\n", level, message)
}

// LogNotifier は通知を構造化ログに出力する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Success は成功通知をInfoで出力する。
func (n *LogNotifier) Success(message string) {
	n.logger.Info("notification", slog.String("kind", "success"), slog.String("message", message))
}

// Error はエラー通知をWarnで出力する。
func (n *LogNotifier) Error(message string) {
	n.logger.Warn("notification", slog.String("kind", "error"), slog.String("message", message))
}
