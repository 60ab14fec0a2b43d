// Package polygonstore persists encoded polygon payloads in Redis.
//
// Payloads above a size threshold are zstd-compressed; the codec is
// detected on read through the zstd frame magic, so the threshold can
// change without invalidating stored entries. Every payload key carries
// the cache epoch; bumping the epoch orphans all previous entries,
// which then age out through their TTLs.
package polygonstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/cache/keys"
	"github.com/spatialkit/h3-boundary/internal/cache/redisstore"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type Config struct {
	DefaultTTL   time.Duration
	JitterFrac   float64
	MinCompress  int
	EpochRefresh time.Duration
}

type Store struct {
	cli *redisstore.Client
	log zerolog.Logger
	cfg Config

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu          sync.Mutex
	epoch       uint64
	epochLoaded time.Time
}

func New(cli *redisstore.Client, log zerolog.Logger, cfg Config) (*Store, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.EpochRefresh <= 0 {
		cfg.EpochRefresh = 2 * time.Second
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{cli: cli, log: log, cfg: cfg, enc: enc, dec: dec}, nil
}

// Epoch returns the current cache epoch. The value is refreshed from
// Redis at most once per refresh interval; when the refresh fails a
// previously loaded epoch is served so lookups stay available.
func (s *Store) Epoch(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.epochLoaded.IsZero() && time.Since(s.epochLoaded) < s.cfg.EpochRefresh {
		return s.epoch, nil
	}
	n, err := s.cli.GetUint64(ctx, keys.Epoch)
	if err != nil {
		if !s.epochLoaded.IsZero() {
			s.log.Warn().Err(err).Uint64("epoch", s.epoch).Msg("epoch refresh failed, serving last known")
			return s.epoch, nil
		}
		return 0, fmt.Errorf("load epoch: %w", err)
	}
	s.epoch = n
	s.epochLoaded = time.Now()
	return n, nil
}

// BumpEpoch invalidates every cached polygon by advancing the epoch.
func (s *Store) BumpEpoch(ctx context.Context) (uint64, error) {
	n, err := s.cli.Incr(ctx, keys.Epoch)
	if err != nil {
		return 0, fmt.Errorf("bump epoch: %w", err)
	}
	s.mu.Lock()
	s.epoch = n
	s.epochLoaded = time.Now()
	s.mu.Unlock()
	return n, nil
}

// Get returns the stored payload for key, transparently decompressed.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.cli.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if !hasZstdMagic(raw) {
		return raw, true, nil
	}
	body, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress %q: %w", key, err)
	}
	return body, true, nil
}

// MGet returns the stored payloads for ks, transparently decompressed.
// Keys without an entry are absent from the result.
func (s *Store) MGet(ctx context.Context, ks []string) (map[string][]byte, error) {
	raw, err := s.cli.MGet(ctx, ks)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		if !hasZstdMagic(v) {
			out[k] = v
			continue
		}
		body, err := s.dec.DecodeAll(v, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %q: %w", k, err)
		}
		out[k] = body
	}
	return out, nil
}

// Put stores a payload under key. A non-positive ttl selects the default;
// the applied TTL is jittered to spread expiry. Bodies at or above the
// compression threshold are stored zstd-compressed unless compression
// does not shrink them.
func (s *Store) Put(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	ttl = s.jitter(ttl)

	stored := body
	if s.cfg.MinCompress > 0 && len(body) >= s.cfg.MinCompress {
		if c := s.enc.EncodeAll(body, nil); len(c) < len(body) {
			stored = c
		}
	}
	if err := s.cli.Set(ctx, key, stored, ttl); err != nil {
		return err
	}
	s.log.Debug().
		Str("key", key).
		Int("raw_bytes", len(body)).
		Int("stored_bytes", len(stored)).
		Dur("ttl", ttl).
		Msg("stored polygon payload")
	return nil
}

// Delete removes payload keys, used by targeted invalidation.
func (s *Store) Delete(ctx context.Context, ks ...string) error {
	if len(ks) == 0 {
		return nil
	}
	return s.cli.Del(ctx, ks...)
}

func (s *Store) jitter(ttl time.Duration) time.Duration {
	if s.cfg.JitterFrac <= 0 {
		return ttl
	}
	f := 1 + (rand.Float64()*2-1)*s.cfg.JitterFrac
	return time.Duration(float64(ttl) * f)
}

func hasZstdMagic(b []byte) bool {
	return len(b) >= 4 &&
		b[0] == zstdMagic[0] && b[1] == zstdMagic[1] &&
		b[2] == zstdMagic[2] && b[3] == zstdMagic[3]
}
