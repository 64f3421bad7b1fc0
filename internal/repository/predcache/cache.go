// Package predcache memoizes served risk scores in a key-value store.
package predcache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/db"
	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
)

var cacheKeyPrefix = domain.KeyPrefix + "pred:"

// store is the consumer interface for the prediction cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores scores keyed by model version and resolved feature vector. Keys embed
// the version, so a retrained model never reads a previous model's scores.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a prediction cache. ttl <= 0 stores entries without expiry.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Get returns a cached score. Store failures and corrupt entries count as misses.
func (c *Cache) Get(ctx context.Context, version string, v feature.Vector) (float64, bool) {
	key := cacheKey(version, v)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached prediction", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return 0, false
	}

	score, err := parseScore(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached prediction", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return 0, false
	}

	c.incCache("hit")
	return score, true
}

// Set stores a score. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, version string, v feature.Vector, score float64) {
	key := cacheKey(version, v)
	data := []byte(strconv.FormatFloat(score, 'f', -1, 64))

	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("Failed to cache prediction", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey renders the vector in canonical column order, e.g.
// "blockrisk:pred:<version>:12|5|1|0|5".
func cacheKey(version string, v feature.Vector) string {
	var b strings.Builder
	b.WriteString(cacheKeyPrefix)
	b.WriteString(version)
	b.WriteByte(':')
	for i, x := range v.Values() {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	}
	return b.String()
}

func parseScore(data []byte) (float64, error) {
	s, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid prediction cache data %q: %w", data, err)
	}
	if math.IsNaN(s) || s < 0 || s > 100 {
		return 0, fmt.Errorf("cached score %v outside [0,100]", s)
	}
	return s, nil
}
