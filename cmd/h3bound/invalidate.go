package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spatialkit/h3-boundary/internal/invalidation"
	kafkainv "github.com/spatialkit/h3-boundary/pkg/invalidation/kafka"
)

var invalidateOpts struct {
	scope   string
	cell    string
	res     int
	reason  string
	brokers string
	topic   string
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Publish a cache invalidation event",
	Long: `invalidate publishes one event to the Kafka topic boundaryd consumes.
Scope all bumps the cache epoch, scope cell drops cached polygons
derived from one cell, scope res drops every cached polygon at a
resolution. Brokers and topic default from the KAFKA_* environment.`,
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
	fl := invalidateCmd.Flags()
	fl.StringVar(&invalidateOpts.scope, "scope", "", "invalidation scope (all, cell, res)")
	fl.StringVar(&invalidateOpts.cell, "cell", "", "cell index, required for scope cell")
	fl.IntVar(&invalidateOpts.res, "res", -1, "resolution, required for scope res")
	fl.StringVar(&invalidateOpts.reason, "reason", "", "audit note carried on the event")
	fl.StringVar(&invalidateOpts.brokers, "brokers", "", "Kafka brokers, comma separated")
	fl.StringVar(&invalidateOpts.topic, "topic", "", "Kafka topic")
	_ = invalidateCmd.MarkFlagRequired("scope")
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ev := invalidation.Event{
		Version: 1,
		Scope:   invalidation.Scope(invalidateOpts.scope),
		Cell:    invalidateOpts.cell,
		Reason:  invalidateOpts.reason,
		TS:      time.Now().UTC(),
	}
	if invalidateOpts.res >= 0 {
		res := invalidateOpts.res
		ev.Res = &res
	}
	// fail on a bad event before dialing the brokers
	if err := ev.Validate(); err != nil {
		return err
	}

	cfg := kafkainv.FromEnv()
	if invalidateOpts.brokers != "" {
		var bs []string
		for _, b := range strings.Split(invalidateOpts.brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				bs = append(bs, b)
			}
		}
		cfg.Brokers = bs
	}
	if invalidateOpts.topic != "" {
		cfg.Topic = invalidateOpts.topic
	}

	pub, err := kafkainv.NewPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	part, off, err := pub.Publish(ev)
	if err != nil {
		return err
	}

	if rootOpts.json {
		return printJSON(struct {
			Topic     string `json:"topic"`
			Partition int32  `json:"partition"`
			Offset    int64  `json:"offset"`
		}{cfg.Topic, part, off})
	}
	fmt.Printf("published scope %s to %s partition %d offset %d\n", ev.Scope, cfg.Topic, part, off)
	return nil
}
