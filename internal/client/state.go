package client

import (
	"sync"

	"github.com/hitoshi/pipnation/internal/model"
)

// AppState は表示中のプロフィールと画面を保持する。
type AppState struct {
	mu      sync.RWMutex
	profile *model.UserProfile
	view    View
}

// NewAppState はランディング画面から始まるAppStateを生成する。
func NewAppState() *AppState {
	return &AppState{view: ViewLanding}
}

// Profile は現在のプロフィールを返す。未取得の場合はnil。
func (s *AppState) Profile() *model.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// View は現在の画面を返す。
func (s *AppState) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// ShowProfile は取得したプロフィールを反映し、管理者なら管理画面、それ以外はダッシュボードに遷移する。
func (s *AppState) ShowProfile(profile *model.UserProfile) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.view = HomeView(profile)
	return s.view
}

// Navigate は要求された画面へ遷移し、実際に表示する画面を返す。
func (s *AppState) Navigate(requested View) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = Resolve(requested, s.profile)
	return s.view
}

// Clear はプロフィールを破棄してランディング画面に戻す。
func (s *AppState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	s.view = ViewLanding
}

// Bind はサインアウト時に状態を破棄するようセッションに登録する。
func (s *AppState) Bind(sessions *SessionStore) (unsubscribe func()) {
	return sessions.Subscribe(func(event Event, _ Session) {
		if event == EventSignedOut {
			s.Clear()
		}
	})
}
