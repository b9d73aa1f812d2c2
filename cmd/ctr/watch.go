package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/watch"
)

var (
	watchFlags    jobFlags
	watchDebounce time.Duration
	watchExisting bool
)

func init() {
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a new file is reviewed")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also review files already in the directory")
	rootCmd.AddCommand(watchCmd)
}

// watchCmd reviews contracts dropped into a directory
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Review contracts dropped into a directory",
	Long: `Watch a directory and review each new PDF or DOCX file once it stops
changing. Every result is printed as one JSON line. Runs until interrupted.

Examples:
  ctr watch --type non_disclosure_agreement ~/Contracts/inbox
  ctr watch --type services_agreement --existing --debounce 2s ./drop`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	runner := env.services.Pipeline()
	var mu sync.Mutex
	enc := json.NewEncoder(cmd.OutOrStdout())

	handler := func(ctx context.Context, path string) {
		res := runner.Run(ctx, watchFlags.job(path))
		if res.Failed() {
			env.logger.Warn(ctx, "review failed", zap.String("path", path), zap.String("error", res.Error))
		}
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(res); err != nil {
			env.logger.Error(ctx, "failed to write result", zap.Error(err))
		}
	}

	w, err := watch.New(args[0], handler, watch.Options{
		Debounce:     watchDebounce,
		ScanExisting: watchExisting,
		Logger:       env.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", args[0])

	<-cmd.Context().Done()
	w.Stop()
	return nil
}
