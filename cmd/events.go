/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskdeck/apiserver/config"
	"github.com/taskdeck/apiserver/internal/events"
)

// eventsCmd runs the audit consumer: it subscribes to the lifecycle
// channels and logs every event the API publishes.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Consume and log lifecycle events from the configured broker",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		bus, err := events.NewFromConfig(cmd.Context(), cfg.Broker)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to broker: %v\n", err)
			os.Exit(1)
		}
		if bus == nil {
			fmt.Fprintln(os.Stderr, "no broker configured, set BROKER_BACKEND")
			os.Exit(1)
		}
		defer bus.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		channels := []string{events.ChannelUserRegistered, events.ChannelTodoCompleted}
		errCh := make(chan error, len(channels))
		for _, channel := range channels {
			go func(channel string) {
				errCh <- bus.Subscribe(ctx, channel, func(ctx context.Context, msg events.Message) error {
					log.Printf("event %s id=%s payload=%s", channel, msg.ID, msg.Data)
					return nil
				})
			}(channel)
		}

		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "consumer error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
