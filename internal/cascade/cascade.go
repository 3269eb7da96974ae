// Package cascade implements a generic ordered-level inference engine: cheap
// classifiers run first, expensive ones run only when the cheap layers are
// not confident enough. It is the shared mechanism behind emotion detection,
// intent recognition, and entity extraction (see internal/nlp).
//
// Engine is safe for concurrent use once constructed; AddLevel must not be
// called concurrently with Infer.
package cascade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Result is the outcome of a single level's inference, or of a full cascade run.
type Result struct {
	// Value is the level's decision. Its concrete type is defined by the
	// caller's Level implementations (string for intent/emotion type,
	// []Entity for NER, ...).
	Value any

	// Confidence is in [0,1].
	Confidence float64

	// LevelTag identifies which level produced this Result (e.g. "rule", "lm").
	LevelTag string

	// Metadata carries level-specific extras and, on a multi-level run,
	// bookkeeping about skipped/errored levels.
	Metadata map[string]any
}

// Level is a single classifier in a cascade. Implementations must not mutate
// any Result returned by a previous level.
type Level interface {
	// Infer evaluates input with the given context and returns a Result.
	// A non-nil error causes the engine to record it and move on to the
	// next level.
	Infer(ctx context.Context, input string, levelContext map[string]any) (Result, error)

	// Tag names this level, used as Result.LevelTag and in cache diagnostics.
	Tag() string
}

// FallbackStrategy selects what the engine returns when no level reaches the
// confidence threshold.
type FallbackStrategy string

const (
	// FallbackBestOf returns the highest-confidence Result seen across all levels.
	FallbackBestOf FallbackStrategy = "best-of"

	// FallbackCascade returns the last level's Result regardless of confidence.
	FallbackCascade FallbackStrategy = "cascade"
)

const (
	defaultThreshold = 0.7
	defaultCacheSize = 1000
	defaultCacheTTL  = time.Hour
	defaultFallback  = FallbackBestOf
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithThreshold sets the confidence threshold a level must reach to short-circuit
// the cascade. Default 0.7.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithFallbackStrategy sets the strategy used when no level reaches the
// threshold. Default [FallbackBestOf].
func WithFallbackStrategy(s FallbackStrategy) Option {
	return func(e *Engine) { e.fallback = s }
}

// WithCache enables or disables result caching. Enabled by default.
func WithCache(enabled bool) Option {
	return func(e *Engine) { e.cacheEnabled = enabled }
}

// WithCacheSize sets the maximum number of cached entries (LRU eviction beyond
// this). Default 1000.
func WithCacheSize(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// WithCacheTTL sets the cache entry lifetime. Default 1 hour.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = d }
}

// Engine runs an ordered sequence of Levels against an input, short-circuiting
// at the first level whose confidence meets the threshold.
type Engine struct {
	mu     sync.RWMutex
	levels []Level

	threshold    float64
	fallback     FallbackStrategy
	cacheEnabled bool
	cacheSize    int
	cacheTTL     time.Duration

	cache *lru.LRU[string, Result]

	// sg collapses concurrent Infer calls that miss the cache on the same
	// (input, levelContext) key into a single run of the level chain — two
	// goroutines racing on a just-evicted or never-seen key both get the one
	// computed Result instead of each paying for every level.
	sg singleflight.Group
}

// New constructs an Engine over levels, in the given order. Order is fixed
// after construction except via AddLevel, which appends and invalidates the
// cache.
func New(levels []Level, opts ...Option) *Engine {
	e := &Engine{
		levels:       append([]Level(nil), levels...),
		threshold:    defaultThreshold,
		fallback:     defaultFallback,
		cacheEnabled: true,
		cacheSize:    defaultCacheSize,
		cacheTTL:     defaultCacheTTL,
	}
	for _, o := range opts {
		o(e)
	}
	e.initCache()
	return e
}

func (e *Engine) initCache() {
	if e.cacheEnabled {
		e.cache = lru.NewLRU[string, Result](e.cacheSize, nil, e.cacheTTL)
	} else {
		e.cache = nil
	}
}

// AddLevel appends a level to the end of the cascade and invalidates the
// cache, since previously cached Results were computed without it.
func (e *Engine) AddLevel(l Level) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.levels = append(e.levels, l)
	e.initCache()
}

// Infer runs the cascade over input and levelContext.
//
//  1. If caching is enabled, a cache hit on hash(input, levelContext) returns
//     immediately.
//  2. On a cache miss, concurrent callers sharing the same key are collapsed
//     via singleflight into a single run of the level chain below.
//  3. Each level runs in order. A level error is recorded and the next level
//     is tried. A level whose confidence meets the threshold short-circuits
//     the cascade; its Result is cached (if caching is enabled) and returned.
//  4. If no level met the threshold, the fallback strategy picks a Result
//     from those seen. If every level errored, a synthetic zero-confidence
//     Result is returned, with Metadata["errors"] recording each error.
func (e *Engine) Infer(ctx context.Context, input string, levelContext map[string]any) (Result, error) {
	e.mu.RLock()
	levels := e.levels
	cache := e.cache
	threshold := e.threshold
	fallback := e.fallback
	e.mu.RUnlock()

	var key string
	if cache != nil {
		key = cacheKey(input, levelContext)
		if cached, ok := cache.Get(key); ok {
			return cached, nil
		}
	}

	runLevels := func() (Result, error) {
		var (
			seen   []Result
			errs   = map[string]string{}
			best   Result
			hasAny bool
		)

		for _, level := range levels {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			default:
			}

			result, err := level.Infer(ctx, input, levelContext)
			if err != nil {
				errs[level.Tag()] = err.Error()
				continue
			}
			result.LevelTag = level.Tag()
			seen = append(seen, result)

			if !hasAny || result.Confidence > best.Confidence {
				best = result
				hasAny = true
			}

			if result.Confidence >= threshold {
				if cache != nil {
					cache.Add(key, result)
				}
				return result, nil
			}
		}

		if !hasAny {
			synthetic := Result{
				Value:      nil,
				Confidence: 0,
				LevelTag:   "none",
				Metadata:   map[string]any{"errors": errs},
			}
			return synthetic, nil
		}

		var final Result
		switch fallback {
		case FallbackCascade:
			final = seen[len(seen)-1]
		default:
			final = best
		}
		if len(errs) > 0 {
			if final.Metadata == nil {
				final.Metadata = map[string]any{}
			}
			final.Metadata["errors"] = errs
		}

		if cache != nil {
			cache.Add(key, final)
		}
		return final, nil
	}

	if cache == nil {
		return runLevels()
	}

	v, err, _ := e.sg.Do(key, func() (any, error) {
		return runLevels()
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// cacheKey hashes the (input, levelContext) pair. levelContext is marshaled
// via encoding/json, which sorts map keys, so equal maps always hash equal
// regardless of insertion order.
func cacheKey(input string, levelContext map[string]any) string {
	h := sha256.New()
	h.Write([]byte(input))
	h.Write([]byte{0})
	if len(levelContext) > 0 {
		keys := make([]string, 0, len(levelContext))
		for k := range levelContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		normalized := make(map[string]any, len(levelContext))
		for _, k := range keys {
			normalized[k] = levelContext[k]
		}
		if b, err := json.Marshal(normalized); err == nil {
			h.Write(b)
		} else {
			// Unmarshalable context value: fall back to a best-effort
			// fmt-based encoding so the key is still stable per run.
			h.Write([]byte(fmt.Sprintf("%v", normalized)))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
