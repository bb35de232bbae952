package client

import (
	"fmt"
	"strings"

	"github.com/hitoshi/pipnation/internal/model"
)

// View は表示する画面。
type View string

const (
	ViewLanding   View = "landing"
	ViewDashboard View = "dashboard"
	ViewAdmin     View = "admin"
	ViewCourses   View = "courses"
	ViewBeginners View = "beginners"
	ViewStrategy  View = "strategy"
	ViewCommunity View = "community"
)

// views は定義済みの全画面。
var views = []View{ViewLanding, ViewDashboard, ViewAdmin, ViewCourses, ViewBeginners, ViewStrategy, ViewCommunity}

// ParseView は文字列を画面に変換する。
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range views {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// courseView はコース専用画面に対応するコースIDを返す。
func courseView(v View) (string, bool) {
	switch v {
	case ViewBeginners:
		return model.CourseBeginners, true
	case ViewStrategy:
		return model.CourseStrategy, true
	default:
		return "", false
	}
}

// HomeView はプロフィール取得直後に表示する画面を返す。
func HomeView(profile *model.UserProfile) View {
	if profile != nil && profile.IsAdmin() {
		return ViewAdmin
	}
	return ViewDashboard
}

// Resolve は要求された画面とプロフィールから実際に表示する画面を決める。
//
// プロフィールがない場合はランディング画面。コース画面は受講登録済みかつlead以外の場合のみ表示し、
// それ以外は受講案内（courses）に置き換える。管理画面は管理者以外にはダッシュボードを表示する。
func Resolve(requested View, profile *model.UserProfile) View {
	if profile == nil {
		return ViewLanding
	}

	if course, ok := courseView(requested); ok {
		if profile.IsEnrolled(course) && profile.Role != model.RoleLead {
			return requested
		}
		return ViewCourses
	}

	switch requested {
	case ViewAdmin:
		if profile.IsAdmin() {
			return ViewAdmin
		}
		return ViewDashboard
	case ViewLanding, ViewDashboard, ViewCourses, ViewCommunity:
		return requested
	default:
		return ViewDashboard
	}
}
