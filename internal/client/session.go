package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session は認証済みのアクセストークンとユーザーIDを表す。
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	UserID       string    `json:"userId"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

// Expired はアクセストークンの期限がnow以前かを返す。期限不明の場合はfalse。
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Event はセッションの変化を表す。
type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventSignedOut      Event = "signed_out"
	EventTokenRefreshed Event = "token_refreshed"
)

// Listener はセッションの変化を受け取る。サインアウト時のsessionはゼロ値。
type Listener func(event Event, session Session)

// Persister はセッションをプロセス外に保存する。
type Persister interface {
	// Load は保存済みセッションを返す。保存がない場合はnil, nil。
	Load() (*Session, error)
	Save(s Session) error
	Clear() error
}

// SessionStore はプロセス内で唯一のセッションを保持する。
// サインインとサインアウトのたびに世代番号を進め、古いセッションで始まった処理が結果を破棄できるようにする。
type SessionStore struct {
	mu         sync.RWMutex
	session    *Session
	generation uint64
	listeners  map[int]Listener
	nextID     int

	persister Persister
	logger    *slog.Logger
}

// NewSessionStore はSessionStoreを生成する。
func NewSessionStore(persister Persister, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		listeners: make(map[int]Listener),
		persister: persister,
		logger:    logger,
	}
}

// Current は現在のセッションを返す。
func (s *SessionStore) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// Generation は現在の世代番号を返す。
func (s *SessionStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SignIn はセッションを確立し、新しい世代番号を返す。
func (s *SessionStore) SignIn(session Session) uint64 {
	s.mu.Lock()
	cp := session
	s.session = &cp
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.save(session)
	s.emit(EventSignedIn, session)
	return gen
}

// RefreshToken はセッションのトークンを差し替える。世代番号は変えない。
// セッションがない場合やユーザーが異なる場合は何もせずfalseを返す。
func (s *SessionStore) RefreshToken(refreshed Session) bool {
	s.mu.Lock()
	if s.session == nil || s.session.UserID != refreshed.UserID {
		s.mu.Unlock()
		return false
	}
	s.session.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		s.session.RefreshToken = refreshed.RefreshToken
	}
	s.session.ExpiresAt = refreshed.ExpiresAt
	current := *s.session
	s.mu.Unlock()

	s.save(current)
	s.emit(EventTokenRefreshed, current)
	return true
}

// SignOut はセッションを破棄し、新しい世代番号を返す。
func (s *SessionStore) SignOut() uint64 {
	s.mu.Lock()
	s.session = nil
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.Clear(); err != nil {
			s.logger.Warn("セッションキャッシュの削除に失敗しました", slog.String("error", err.Error()))
		}
	}
	s.emit(EventSignedOut, Session{})
	return gen
}

// Restore は保存済みセッションを読み込み、存在すればサインイン済みにする。
// 読み込みに失敗した場合や内容が不完全な場合は保存内容を破棄する。
func (s *SessionStore) Restore() (Session, bool, error) {
	if s.persister == nil {
		return Session{}, false, nil
	}

	saved, err := s.persister.Load()
	if err != nil {
		if clearErr := s.persister.Clear(); clearErr != nil {
			s.logger.Warn("セッションキャッシュの削除に失敗しました", slog.String("error", clearErr.Error()))
		}
		return Session{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	if saved == nil || saved.AccessToken == "" || saved.UserID == "" {
		if saved != nil {
			_ = s.persister.Clear()
		}
		return Session{}, false, nil
	}

	s.SignIn(*saved)
	return *saved, true, nil
}

// Subscribe はセッション変化の通知先を登録し、解除関数を返す。
// 通知は変化を起こした呼び出しのゴルーチンで同期的に行われる。
func (s *SessionStore) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *SessionStore) emit(event Event, session Session) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	s.logger.Debug("session event", slog.String("event", string(event)), slog.String("user_id", session.UserID))
	for _, fn := range listeners {
		fn(event, session)
	}
}

func (s *SessionStore) save(session Session) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(session); err != nil {
		s.logger.Warn("セッションの保存に失敗しました",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// FilePersister はセッションをJSONファイルに保存する。
type FilePersister struct {
	path string
}

// NewFilePersister はFilePersisterを生成する。
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load はファイルからセッションを読み込む。ファイルがない場合はnil, nil。
func (p *FilePersister) Load() (*Session, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return &s, nil
}

// Save は一時ファイルに書き込んでから置き換える。
func (p *FilePersister) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear はファイルを削除する。存在しない場合は何もしない。
func (p *FilePersister) Clear() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// MemoryPersister はセッションをメモリ上に保持する。テストや一時実行で使う。
type MemoryPersister struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryPersister はMemoryPersisterを生成する。
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load は保持しているセッションを返す。
func (p *MemoryPersister) Load() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, nil
	}
	cp := *p.session
	return &cp, nil
}

// Save はセッションを保持する。
func (p *MemoryPersister) Save(s Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = &s
	return nil
}

// Clear は保持しているセッションを破棄する。
func (p *MemoryPersister) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = nil
	return nil
}
