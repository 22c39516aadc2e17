package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"menu3d/internal/event"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect job lifecycle events published to Kafka",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print job events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return errors.New("EVENTS_KAFKA_BROKERS is not set")
			}
			reader := event.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, group)
			enc := json.NewEncoder(cmd.OutOrStdout())
			return event.Tail(cmd.Context(), reader, logger, func(typ event.EventType, at time.Time, ev event.JobEvent) error {
				if err := enc.Encode(struct {
					Type string    `json:"type"`
					At   time.Time `json:"at"`
					event.JobEvent
				}{string(typ), at, ev}); err != nil {
					return fmt.Errorf("write event: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "menu3d-events-tail", "Kafka consumer group id")
	return cmd
}
