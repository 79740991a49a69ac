package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrCacheMiss     = errors.New("cache miss")
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Cache è l'interfaccia base per tutti i backend di cache
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats() CacheStats
	Close() error
}

// CacheStats contiene statistiche sul cache
type CacheStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
	Size      int64
}

// HitRate calcola il tasso di hit del cache
func (s *CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config configurazione del cache
type Config struct {
	Backend    string // "memory" o "redis"
	MaxEntries int
	DefaultTTL time.Duration

	RedisHost      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
}

// DefaultConfig restituisce una configurazione di default
func DefaultConfig() *Config {
	return &Config{
		Backend:        "memory",
		MaxEntries:     1000,
		DefaultTTL:     30 * time.Minute,
		RedisHost:      "localhost:6379",
		RedisKeyPrefix: "smartwatcher:",
	}
}

// New crea il cache indicato dalla configurazione.
// Se Redis non è raggiungibile si ripiega sul cache in memoria.
func New(config *Config) (Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Backend {
	case "", "memory":
		log.Info().
			Int("max_entries", config.MaxEntries).
			Dur("ttl", config.DefaultTTL).
			Msg("Memory cache initialized")
		return NewMemoryCache(config.MaxEntries, config.DefaultTTL), nil

	case "redis":
		rc, err := NewRedisCache(config.RedisHost, config.RedisPassword, config.RedisDB, config.RedisKeyPrefix, config.DefaultTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing with memory-only")
			return NewMemoryCache(config.MaxEntries, config.DefaultTTL), nil
		}
		log.Info().
			Str("host", config.RedisHost).
			Int("db", config.RedisDB).
			Msg("Redis cache initialized")
		return rc, nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, config.Backend)
	}
}

// Key genera una chiave deterministica a partire da un namespace e dalle parti
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.TrimSpace(strings.ToLower(p))))
		h.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
