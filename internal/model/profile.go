package model

import (
	"slices"
	"time"
)

// Role はユーザーの権限区分を表す。
// 既知の値以外もそのまま保持する。
type Role string

// 定義済みロール
const (
	RoleLead    Role = "lead"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// コーストラック
const (
	CourseFoundation = "foundation"
	CourseAdvanced   = "advanced"
	CourseBeginners  = "beginners"
	CourseStrategy   = "strategy"
)

// バッジ
const (
	BadgeNone         = "none"
	BadgeFTMOVerified = "ftmo-verified"
)

// DefaultCountry はサインアップ時に国が未指定だった場合の値。
const DefaultCountry = "US"

// CourseTracks は進捗を保持するコーストラックの一覧。
var CourseTracks = []string{CourseFoundation, CourseAdvanced, CourseBeginners, CourseStrategy}

// IsKnownCourse は既知のコーストラックかを返す。
func IsKnownCourse(course string) bool {
	return slices.Contains(CourseTracks, course)
}

// CourseProgress はコースごとのレッスン完了数を表す。
type CourseProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// QuizResult はクイズ1件の提出結果を表す。
type QuizResult struct {
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	CourseLevel string    `json:"courseLevel"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// PaymentRecord はコース購入の支払い記録を表す。
type PaymentRecord struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Reference string    `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paidAt"`
}

// UserProfile はユーザーのコース進捗・権限・購入状況を表す。
// サーバーが正であり、クライアントは再取得のみ行う。
type UserProfile struct {
	UserID           string                    `json:"userId"`
	Email            string                    `json:"email"`
	FirstName        string                    `json:"firstName"`
	Country          string                    `json:"country"`
	Role             Role                      `json:"role"`
	Badge            string                    `json:"badge"`
	Progress         map[string]CourseProgress `json:"progress"`
	CompletedLessons []string                  `json:"completedLessons"`
	QuizScores       map[string]QuizResult     `json:"quizScores"`
	AdvancedUnlocked bool                      `json:"advancedUnlocked"`
	EnrolledCourses  []string                  `json:"enrolledCourses"`
	CoursesCompleted []string                  `json:"coursesCompleted"`
	PaymentHistory   []PaymentRecord           `json:"paymentHistory"`
	CreatedAt        time.Time                 `json:"createdAt"`
}

// NewLeadProfile はサインアップ直後の初期プロフィールを生成する。
// ロールはlead、全トラックの進捗は0で初期化される。
func NewLeadProfile(userID, email, firstName, country string, now time.Time) *UserProfile {
	if country == "" {
		country = DefaultCountry
	}
	progress := make(map[string]CourseProgress, len(CourseTracks))
	for _, c := range CourseTracks {
		progress[c] = CourseProgress{}
	}
	return &UserProfile{
		UserID:           userID,
		Email:            email,
		FirstName:        firstName,
		Country:          country,
		Role:             RoleLead,
		Badge:            BadgeNone,
		Progress:         progress,
		CompletedLessons: []string{},
		QuizScores:       map[string]QuizResult{},
		EnrolledCourses:  []string{},
		CoursesCompleted: []string{},
		PaymentHistory:   []PaymentRecord{},
		CreatedAt:        now.UTC(),
	}
}

// IsAdmin は管理者ロールかを返す。
func (p *UserProfile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasCompleted は指定レッスンが完了済みかを返す。
func (p *UserProfile) HasCompleted(lessonID string) bool {
	return slices.Contains(p.CompletedLessons, lessonID)
}

// IsEnrolled は指定コースを受講登録済みかを返す。
func (p *UserProfile) IsEnrolled(courseID string) bool {
	return slices.Contains(p.EnrolledCourses, courseID)
}

// CompleteLesson はレッスンを完了として記録する。
// 既に完了済みの場合は何もせずfalseを返す。
// 完了数がトラックの総数に達した場合はコース修了として記録する。
func (p *UserProfile) CompleteLesson(course, lessonID string) bool {
	if p.HasCompleted(lessonID) {
		return false
	}
	p.CompletedLessons = append(p.CompletedLessons, lessonID)

	if p.Progress == nil {
		p.Progress = map[string]CourseProgress{}
	}
	cp := p.Progress[course]
	cp.Completed++
	p.Progress[course] = cp

	if cp.Total > 0 && cp.Completed >= cp.Total && !slices.Contains(p.CoursesCompleted, course) {
		p.CoursesCompleted = append(p.CoursesCompleted, course)
	}
	return true
}

// RecordQuiz はクイズ結果を記録し、今回の提出で上級トラックが解放されたかを返す。
// 合格済みの結果は不合格の再提出で上書きしない。
func (p *UserProfile) RecordQuiz(quizID string, result QuizResult) bool {
	if p.QuizScores == nil {
		p.QuizScores = map[string]QuizResult{}
	}
	if prev, ok := p.QuizScores[quizID]; !ok || !prev.Passed || result.Passed {
		p.QuizScores[quizID] = result
	}

	if result.Passed && result.CourseLevel == CourseFoundation && !p.AdvancedUnlocked {
		p.AdvancedUnlocked = true
		return true
	}
	return false
}

// Enroll はコースの受講登録と支払い記録を追加する。
// leadはstudentに昇格し、adminはそのまま。既に登録済みの場合はfalseを返す。
func (p *UserProfile) Enroll(payment PaymentRecord) bool {
	if p.IsEnrolled(payment.CourseID) {
		return false
	}
	p.EnrolledCourses = append(p.EnrolledCourses, payment.CourseID)
	p.PaymentHistory = append(p.PaymentHistory, payment)
	if p.Role == RoleLead {
		p.Role = RoleStudent
	}
	return true
}
