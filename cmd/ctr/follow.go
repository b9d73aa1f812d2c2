package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contractd/internal/events"
)

func init() {
	rootCmd.AddCommand(followCmd)
}

// followCmd streams review events from NATS
var followCmd = &cobra.Command{
	Use:   "follow [ingestionId]",
	Short: "Stream review progress events",
	Long: `Print review lifecycle events as JSON lines as they are published on
NATS. With an ingestion ID the command exits after that review's done
event; without one it follows every review until interrupted.

Requires events.enabled and events.url in the configuration.

Examples:
  ctr follow 3f1c2a9e-7b4d-4c1e-9d6a-0a7f5e2b8c11
  ctr follow | jq 'select(.status == "failed")'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFollow,
}

func runFollow(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	nc := env.services.NATS()
	if nc == nil {
		return errors.New("events are disabled; set events.enabled and events.url")
	}

	var ingestionID string
	if len(args) == 1 {
		ingestionID = args[0]
	}
	return follow(cmd.Context(), nc, ingestionID, cmd.OutOrStdout())
}

// follow writes events to w until ctx ends or, for a single ingestion,
// its done event arrives.
func follow(ctx context.Context, nc *nats.Conn, ingestionID string, w io.Writer) error {
	var (
		mu   sync.Mutex
		once sync.Once
		done = make(chan struct{})
		enc  = json.NewEncoder(w)
	)
	sub, err := events.Subscribe(nc, ingestionID, func(e events.Event) {
		mu.Lock()
		_ = enc.Encode(e)
		mu.Unlock()
		if ingestionID != "" && e.Stage == events.StageDone {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()
	// The server has the subscription once the flush round trip completes
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}
