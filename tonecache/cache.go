// Package tonecache memoizes oracle answers by a normalized hash of the
// gear description, so near-duplicate requests don't pay for a second
// generation.
package tonecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/models"
)

// GearConfig is the oracle input tuple. Normalization is applied
// identically on read and write, so capitalization and whitespace
// differences collapse to the same entry.
type GearConfig struct {
	Artist      string
	Description string
	Guitar      string
	Pickups     string
	Strings     string
	Amp         string
}

// Entry is the cached oracle answer.
type Entry struct {
	Settings models.AmpSettings `json:"settings"`
	Notes    string             `json:"notes"`
}

// Cache is best-effort only: every store error resolves to a miss or is
// swallowed. It is never allowed to fail a user-facing request.
type Cache struct {
	Redis  *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{Redis: client, TTL: ttl, Logger: logger}
}

// Key returns the hex SHA-256 of the normalized config tuple.
func Key(cfg GearConfig) string {
	parts := []string{
		normalizeField(cfg.Artist),
		normalizeField(cfg.Description),
		normalizeField(cfg.Guitar),
		normalizeField(cfg.Pickups),
		normalizeField(cfg.Strings),
		normalizeField(cfg.Amp),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "tone:" + hex.EncodeToString(sum[:])
}

func normalizeField(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Get returns the cached entry for the config, or ok=false on a miss or
// any store error.
func (c *Cache) Get(ctx context.Context, cfg GearConfig) (Entry, bool) {
	var entry Entry

	val, err := c.Redis.Get(ctx, Key(cfg)).Result()
	if err == redis.Nil {
		return entry, false
	}
	if err != nil {
		c.Logger.Warn("tone cache get failed", zap.Error(err))
		return entry, false
	}

	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.Logger.Warn("tone cache entry corrupt", zap.Error(err))
		return entry, false
	}
	return entry, true
}

// Set stores the entry with the configured TTL. Store errors are logged
// and swallowed.
func (c *Cache) Set(ctx context.Context, cfg GearConfig, entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.Logger.Warn("tone cache marshal failed", zap.Error(err))
		return
	}
	if err := c.Redis.Set(ctx, Key(cfg), data, c.TTL).Err(); err != nil {
		c.Logger.Warn("tone cache set failed", zap.Error(err))
	}
}

// Invalidate drops the entry for the config. Used by the regenerate path
// so an explicit user request always reaches the oracle.
func (c *Cache) Invalidate(ctx context.Context, cfg GearConfig) {
	if err := c.Redis.Del(ctx, Key(cfg)).Err(); err != nil {
		c.Logger.Warn("tone cache invalidate failed", zap.Error(err))
	}
}
