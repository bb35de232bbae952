// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
)

// キープレフィックス
const (
	ProfileKeyPrefix = "user:"
	FTMOKeyPrefix    = "ftmo:"
)

// KVEntry はkv_storeの1行を表す。
type KVEntry struct {
	Key       string
	Value     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KVStore は汎用キーバリューテーブルの永続化インターフェース。
// 値はJSONとして保存する。
type KVStore interface {
	// Get は指定キーの値を取得する。存在しない場合はfalseを返す。
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Upsert は値をJSONに変換して保存する。既存キーは上書きする。
	Upsert(ctx context.Context, key string, value any) error

	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error

	// ListByPrefix はプレフィックスに一致するエントリを作成日時順に最大limit件返す。
	ListByPrefix(ctx context.Context, prefix string, limit int) ([]KVEntry, error)

	// ListByField はプレフィックスに一致し、値のトップレベルフィールドが一致するエントリを返す。
	ListByField(ctx context.Context, prefix, field, value string, limit int) ([]KVEntry, error)

	// DeleteByTimeField はプレフィックスに一致し、時刻フィールドがbeforeより前のエントリを削除する。
	// フィールドが存在しないエントリは対象外。削除件数を返す。
	DeleteByTimeField(ctx context.Context, prefix, field string, before time.Time) (int64, error)

	// MergeFields は既存エントリのトップレベルフィールドをfieldsで上書きする。他のフィールドは保持する。
	// matchFieldが空でなければ、その値がmatchValueと一致する場合のみ更新する。
	// 更新した場合にtrueを返す。キーが存在しない場合はfalse。
	MergeFields(ctx context.Context, key string, fields map[string]any, matchField, matchValue string) (bool, error)
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error)

	// Save はプロフィールを保存する。
	Save(ctx context.Context, profile *model.UserProfile) error
}

// FTMORepository はFTMO提出の永続化インターフェース。
type FTMORepository interface {
	// Create は提出を保存する。
	Create(ctx context.Context, submission *model.FTMOSubmission) error

	// FindByID は指定IDの提出を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.FTMOSubmission, error)

	// ListPending はレビュー待ちの提出を提出日時順に返す。
	ListPending(ctx context.Context, limit int) ([]*model.FTMOSubmission, error)

	// ListUncheckedProofs は証跡URLが未確認の提出を返す。
	ListUncheckedProofs(ctx context.Context, limit int) ([]*model.FTMOSubmission, error)

	// RecordProofResult は証跡確認の結果フィールドのみを更新する。提出が存在しない場合はfalseを返す。
	RecordProofResult(ctx context.Context, id string, status model.ProofStatus, httpStatus int, checkedAt time.Time) (bool, error)

	// MarkReviewed はレビュー待ちの提出にのみレビュー結果を書き込む。
	// 既にレビュー済み、または存在しない場合はfalseを返す。
	MarkReviewed(ctx context.Context, id string, status model.FTMOStatus, reviewedBy string, reviewedAt time.Time) (bool, error)

	// DeleteReviewedBefore はreviewedAtがbeforeより前の提出を削除し、削除件数を返す。
	DeleteReviewedBefore(ctx context.Context, before time.Time) (int64, error)
}
