package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/pipnation/internal/model"
)

// KVProfileRepo はkv_storeの "user:<id>" キーにプロフィールを保存するリポジトリ。
type KVProfileRepo struct {
	kv KVStore
}

// NewKVProfileRepo はKVProfileRepoを生成する。
func NewKVProfileRepo(kv KVStore) *KVProfileRepo {
	return &KVProfileRepo{kv: kv}
}

// ProfileKey はユーザーIDからプロフィールのキーを生成する。
func ProfileKey(userID string) string {
	return ProfileKeyPrefix + userID
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *KVProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error) {
	raw, ok, err := r.kv.Get(ctx, ProfileKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var profile model.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", userID, err)
	}
	return &profile, nil
}

// Save はプロフィールを保存する。
func (r *KVProfileRepo) Save(ctx context.Context, profile *model.UserProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("profile has no userId")
	}
	if err := r.kv.Upsert(ctx, ProfileKey(profile.UserID), profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*KVProfileRepo)(nil)
