package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr            string
	LogLevel        string
	Strategy        string
	IntermediateRes int
	RedisAddr       string
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	CacheTTLJitter  float64
	ZstdMinBytes    int
	EpochRefresh    time.Duration
	HotThreshold    float64
	HotHalfLife     time.Duration
	AdmitAll        bool
	AdmitMinCells   int
	AdmitMinDur     time.Duration
	TTLCold         time.Duration
	TTLWarm         time.Duration
	TTLHot          time.Duration
	BatchMaxCells   int
	BatchMaxWorkers int
	BatchQueue      int
	RateRPS         float64
	RateBurst       int
	Invalidation    InvalidationCfg
}

func FromEnv() Config {
	intRes := getint("INTERMEDIATE_RES", 10)
	if intRes < 1 {
		intRes = 1
	}
	if intRes > 15 {
		intRes = 15
	}

	ttlDefault := getduration("CACHE_TTL_DEFAULT", 5*time.Minute)

	jitter := getfloat("CACHE_TTL_JITTER", 0.1)
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 0.5 {
		jitter = 0.5
	}

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		Strategy:        getenv("STRATEGY", "direct"),
		IntermediateRes: intRes,
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: ttlDefault,
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheTTLJitter:  jitter,
		ZstdMinBytes:    getint("CACHE_ZSTD_MIN_BYTES", 1024),
		EpochRefresh:    getduration("CACHE_EPOCH_REFRESH", 2*time.Second),
		HotThreshold:    getfloat("HOT_THRESHOLD", 10.0),
		HotHalfLife:     getduration("HOT_HALF_LIFE", time.Minute),
		AdmitAll:        getbool("ADMIT_ALL", false),
		AdmitMinCells:   getint("ADMIT_MIN_CELLS", 64),
		AdmitMinDur:     getduration("ADMIT_MIN_COMPUTE", 25*time.Millisecond),
		TTLCold:         getduration("CACHE_TTL_COLD", ttlDefault/2),
		TTLWarm:         getduration("CACHE_TTL_WARM", ttlDefault),
		TTLHot:          getduration("CACHE_TTL_HOT", 2*ttlDefault),
		BatchMaxCells:   getint("BATCH_MAX_CELLS", 1024),
		BatchMaxWorkers: getint("BATCH_MAX_WORKERS", 8),
		BatchQueue:      getint("BATCH_QUEUE", 64),
		RateRPS:         getfloat("RATE_LIMIT_RPS", 0),
		RateBurst:       getint("RATE_LIMIT_BURST", 20),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "none"),
			Topic:   getenv("KAFKA_TOPIC", "boundary-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "boundary-invalidator"),
		},
	}
}

// TTLFor resolves the cache TTL for an operation, override first.
func (c Config) TTLFor(op string) time.Duration {
	if d, ok := c.CacheTTLOvr[op]; ok {
		return d
	}
	return c.CacheTTLDefault
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "boundary=10m,cell=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
