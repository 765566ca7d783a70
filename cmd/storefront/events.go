package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GueYatma/koktek-front/internal/config"
	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/messaging"
	"github.com/GueYatma/koktek-front/internal/repository"
	"github.com/GueYatma/koktek-front/internal/service"
)

var orderTopics = []string{
	entity.TopicOrdersPlaced,
	entity.TopicOrdersCashPending,
	entity.TopicOrdersPaid,
}

func eventsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect storefront domain events",
	}

	var group string
	tail := &cobra.Command{
		Use:   "tail [topic]...",
		Short: "Print order events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			switch a.cfg.Events.Driver {
			case config.EventsNone, config.EventsMemory:
				return fmt.Errorf("events driver %q is not reachable from another process", a.cfg.Events.Driver)
			}
			topics := args
			if len(topics) == 0 {
				topics = orderTopics
			}
			tailEvents(ctx, a.broker, topics, group, cmd.OutOrStdout())
			return nil
		},
	}
	tail.Flags().StringVar(&group, "group", "koktek-tail", "Consumer group")
	cmd.AddCommand(tail)

	cmd.AddCommand(&cobra.Command{
		Use:   "history <order id>",
		Short: "Print the journaled events of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			events, ok := store.(repository.EventStore)
			if !ok {
				return fmt.Errorf("store driver %q keeps no order journal", a.cfg.Store.Driver)
			}
			history, err := service.NewOrderJournal(events, a.logger).History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), history)
			return nil
		},
	})

	return cmd
}

// tailEvents consumes topics until ctx is done, printing one line per event.
func tailEvents(ctx context.Context, sub messaging.Subscriber, topics []string, group string, w io.Writer) {
	var (
		wg  sync.WaitGroup
		out sync.Mutex
	)
	for _, topic := range topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Consume(ctx, topic, group, func(_ context.Context, payload []byte) error {
				env, err := messaging.Decode(payload)
				if err != nil {
					return err
				}
				out.Lock()
				defer out.Unlock()
				fmt.Fprintf(w, "%s %s key=%s %s\n", env.OccurredAt.Format(time.RFC3339), env.Type, env.Key, env.Payload)
				return nil
			})
		}()
	}
	wg.Wait()
}

func printHistory(w io.Writer, history []entity.EventStoreRecord) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No events journaled for this order.")
		return
	}
	for _, e := range history {
		fmt.Fprintf(w, "#%d %s %s %s\n", e.Version, e.OccurredAt.Format(time.RFC3339), e.EventType, e.Payload)
	}
}
