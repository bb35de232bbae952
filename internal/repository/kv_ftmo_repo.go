package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/pipnation/internal/model"
)

// KVFTMORepo はkv_storeの "ftmo:<id>" キーにFTMO提出を保存するリポジトリ。
type KVFTMORepo struct {
	kv KVStore
}

// NewKVFTMORepo はKVFTMORepoを生成する。
func NewKVFTMORepo(kv KVStore) *KVFTMORepo {
	return &KVFTMORepo{kv: kv}
}

// FTMOKey は提出IDからキーを生成する。
func FTMOKey(id string) string {
	return FTMOKeyPrefix + id
}

// Create は提出を保存する。
func (r *KVFTMORepo) Create(ctx context.Context, submission *model.FTMOSubmission) error {
	if submission.ID == "" {
		return fmt.Errorf("submission has no id")
	}
	if err := r.kv.Upsert(ctx, FTMOKey(submission.ID), submission); err != nil {
		return fmt.Errorf("failed to create ftmo submission: %w", err)
	}
	return nil
}

// FindByID は指定IDの提出を取得する。見つからない場合はnilを返す。
func (r *KVFTMORepo) FindByID(ctx context.Context, id string) (*model.FTMOSubmission, error) {
	raw, ok, err := r.kv.Get(ctx, FTMOKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to find ftmo submission: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var s model.FTMOSubmission
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode ftmo submission %s: %w", id, err)
	}
	return &s, nil
}

// ListPending はレビュー待ちの提出を返す。
func (r *KVFTMORepo) ListPending(ctx context.Context, limit int) ([]*model.FTMOSubmission, error) {
	entries, err := r.kv.ListByField(ctx, FTMOKeyPrefix, "status", string(model.FTMOStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ftmo submissions: %w", err)
	}
	return decodeSubmissions(entries)
}

// ListUncheckedProofs は証跡URLが未確認の提出を返す。
func (r *KVFTMORepo) ListUncheckedProofs(ctx context.Context, limit int) ([]*model.FTMOSubmission, error) {
	entries, err := r.kv.ListByField(ctx, FTMOKeyPrefix, "proofStatus", string(model.ProofStatusUnchecked), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unchecked ftmo proofs: %w", err)
	}
	return decodeSubmissions(entries)
}

// RecordProofResult は証跡確認の結果フィールドのみをマージする。
// status/reviewedAt/reviewedByは書き換えないため、確認中に行われたレビューを上書きしない。
func (r *KVFTMORepo) RecordProofResult(ctx context.Context, id string, status model.ProofStatus, httpStatus int, checkedAt time.Time) (bool, error) {
	fields := map[string]any{
		"proofStatus":     status,
		"proofHttpStatus": httpStatus,
		"proofCheckedAt":  checkedAt,
	}
	ok, err := r.kv.MergeFields(ctx, FTMOKey(id), fields, "", "")
	if err != nil {
		return false, fmt.Errorf("failed to record ftmo proof result: %w", err)
	}
	return ok, nil
}

// MarkReviewed はstatusがpendingの場合のみレビュー結果をマージする。
func (r *KVFTMORepo) MarkReviewed(ctx context.Context, id string, status model.FTMOStatus, reviewedBy string, reviewedAt time.Time) (bool, error) {
	fields := map[string]any{
		"status":     status,
		"reviewedBy": reviewedBy,
		"reviewedAt": reviewedAt,
	}
	ok, err := r.kv.MergeFields(ctx, FTMOKey(id), fields, "status", string(model.FTMOStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark ftmo submission reviewed: %w", err)
	}
	return ok, nil
}

// DeleteReviewedBefore はreviewedAtがbeforeより前の提出を削除する。
// 未レビューの提出はreviewedAtを持たないため対象外となる。
func (r *KVFTMORepo) DeleteReviewedBefore(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.kv.DeleteByTimeField(ctx, FTMOKeyPrefix, "reviewedAt", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviewed ftmo submissions: %w", err)
	}
	return n, nil
}

func decodeSubmissions(entries []KVEntry) ([]*model.FTMOSubmission, error) {
	subs := make([]*model.FTMOSubmission, 0, len(entries))
	for _, e := range entries {
		var s model.FTMOSubmission
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", e.Key, err)
		}
		subs = append(subs, &s)
	}
	return subs, nil
}

// compile-time interface check
var _ FTMORepository = (*KVFTMORepo)(nil)
