// Package kafka consumes cache invalidation events from a Kafka topic
// and applies them to the polygon cache.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/invalidation"
)

type Applier interface {
	Apply(ctx context.Context, ev invalidation.Event) error
}

type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	applier  Applier
	ms       *metricSet
	ver      *versionDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func New(cfg InvalidationConfig, applier Applier, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:     opts.Logger,
		cfg:     cfg,
		applier: applier,
		ms:      newMetricSet(opts.Register),
		ver:     newVersionDedupe(8192),
		assign:  map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Driver != DriverKafka || !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.applier == nil {
		return errors.New("kafka runner: applier dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg, err := r.saramaConfig()
	if err != nil {
		return err
	}

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) saramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	if err := applyNet(cfg, r.cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyNet(sc *sarama.Config, cfg InvalidationConfig) error {
	if cfg.SASL.Enable {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.SASL.Username
		sc.Net.SASL.Password = cfg.SASL.Password
	}
	if cfg.TLS.Enable {
		tc, err := buildTLS(cfg.TLS)
		if err != nil {
			return fmt.Errorf("kafka tls: %w", err)
		}
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = tc
	}
	return nil
}

func buildTLS(c TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{InsecureSkipVerify: c.SkipVerify, MinVersion: tls.VersionTLS12}
	if c.CaFile != "" {
		pem, err := os.ReadFile(c.CaFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates parsed from ca file")
		}
		tc.RootCAs = pool
	}
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		lag := time.Since(msg.Timestamp).Seconds()
		r.ms.lagGauge.Set(lag)
		observability.SetInvalidationLagSeconds(lag)
	}

	var w WireEvent
	if err := json.Unmarshal(msg.Value, &w); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		observability.IncKafkaConsumerError("decode")
		return fmt.Errorf("decode: %w", err)
	}
	ev := w.Event(msg.Timestamp)
	if err := ev.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		observability.IncKafkaConsumerError("validate")
		return fmt.Errorf("validate: %w", err)
	}

	sel := w.selector()
	ver := uint64(ev.TS.UnixNano())
	if r.ver.stale(sel, ver) {
		r.ms.msgs.WithLabelValues("skip_stale").Inc()
		observability.ObserveInvalidation("duplicate")
		return nil
	}

	err := r.applier.Apply(ctx, ev)
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		observability.IncKafkaConsumerError("apply")
	} else {
		r.ver.record(sel, ver)
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(string(ev.Scope)).Observe(time.Since(start).Seconds())
	return err
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
