package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenCachePrefix はRedis上のキャッシュキーのプレフィックス。
const tokenCachePrefix = "authtok:"

// CachedVerifier は検証成功したトークンの持ち主をRedisにキャッシュするTokenVerifier。
// 失敗結果はキャッシュしない。Redis障害時は委譲先で検証する。
type CachedVerifier struct {
	next   TokenVerifier
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedVerifier はCachedVerifierを生成する。
func NewCachedVerifier(next TokenVerifier, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedVerifier {
	return &CachedVerifier{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Verify はキャッシュを参照し、なければ委譲先で検証して結果を保存する。
func (v *CachedVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	key := tokenCacheKey(token)

	// 1. キャッシュ参照
	data, err := v.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var identity Identity
		if jsonErr := json.Unmarshal(data, &identity); jsonErr == nil {
			if identity.ExpiresAt.IsZero() || v.now().Before(identity.ExpiresAt) {
				return &identity, nil
			}
		}
		// 期限切れまたは破損したエントリは破棄して再検証する
		v.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		v.logger.Warn("token cache lookup failed",
			slog.String("error", err.Error()),
		)
	}

	// 2. 委譲先で検証
	identity, err := v.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	// 3. キャッシュ保存。TTLはトークンの残り有効期間を超えない
	ttl := v.ttl
	if !identity.ExpiresAt.IsZero() {
		if remaining := identity.ExpiresAt.Sub(v.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return identity, nil
	}

	payload, err := json.Marshal(identity)
	if err != nil {
		return identity, nil
	}
	if err := v.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		v.logger.Warn("token cache store failed",
			slog.String("error", err.Error()),
		)
	}

	return identity, nil
}

// tokenCacheKey はトークンのSHA-256からキャッシュキーを生成する。トークン自体は保存しない。
func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenCachePrefix + hex.EncodeToString(sum[:])
}

// compile-time interface check
var _ TokenVerifier = (*CachedVerifier)(nil)
