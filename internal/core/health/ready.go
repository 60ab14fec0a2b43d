// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessReporter reports consumer group assignment.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Options lists the dependencies readiness waits on. A nil field means
// the dependency is not part of this deployment and is skipped.
type Options struct {
	Redis   Pinger
	Kafka   ReadinessReporter
	Timeout time.Duration
}

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func Readiness(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string  `json:"status"`
			Redis      string  `json:"redis,omitempty"`
			Kafka      string  `json:"kafka,omitempty"`
			Partitions []int32 `json:"partitions,omitempty"`
		}
		out := resp{Status: "ready"}
		ready := true

		if opts.Redis != nil {
			ctx := r.Context()
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			if err := opts.Redis.Ping(ctx); err != nil {
				out.Redis = "unreachable"
				ready = false
			} else {
				out.Redis = "ok"
			}
		}

		if opts.Kafka != nil {
			ok, parts := opts.Kafka.Readiness()
			if ok {
				out.Kafka = "ok"
				out.Partitions = parts
			} else {
				out.Kafka = "not_ready"
				ready = false
			}
		}

		if !ready {
			out.Status = "not_ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
