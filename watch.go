package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stratushq/stratus-go/internal/engine"
	"github.com/stratushq/stratus-go/internal/notify"
	"github.com/stratushq/stratus-go/internal/session"
)

// Watcher error backoff bounds, and how often a long-running watch
// flushes the catalog snapshot to disk.
const (
	watchErrInitBackoff  = time.Second
	watchErrMaxBackoff   = time.Minute
	watchErrBackoffMult  = 2
	snapshotSaveInterval = 5 * time.Minute
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache and session current",
		Long: `Run until interrupted, keeping local state current:

  - subscribes to the platform's catalog event stream and invalidates
    changed listings (requires catalog.websocket = true in the config)
  - reloads the session when another process rotates the session file
  - flushes the catalog snapshot to disk periodically

Intended for hosts that embed the catalog cache for long stretches,
where stale listings would otherwise persist for the whole run.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	// The event stream treats a missing session as fatal, so check
	// before spinning anything up.
	if _, ok := eng.Current(); !ok {
		return loginHint(session.ErrNotAuthenticated)
	}

	ctx := shutdownContext(cmd.Context(), logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return watchSessionFile(ctx, eng, settings.SessionPath, logger)
	})

	group.Go(func() error {
		return saveSnapshotLoop(ctx, eng, logger)
	})

	if settings.Websocket {
		endpoint, err := notify.Endpoint(eng.BaseURL())
		if err != nil {
			return err
		}

		sub := notify.NewSubscriber(endpoint, eng, notify.StoreInvalidator(eng.Store(), logger), logger)

		group.Go(func() error {
			return sub.Run(ctx)
		})

		statusf("Watching catalog events and the session file. Ctrl-C to stop.\n")
	} else {
		statusf("Watching the session file (event stream disabled). Ctrl-C to stop.\n")
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return loginHint(err)
	}

	return nil
}

// watchSessionFile reloads the session whenever another process writes
// or removes the session file. The watch is on the directory: saves go
// through a temp file and rename, which replaces the inode, so a watch
// on the path itself goes stale after the first rotation.
func watchSessionFile(ctx context.Context, eng *engine.Engine, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting session watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if ev.Name != path {
				continue
			}

			// Mode changes don't alter the tokens.
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if err := eng.ReloadSession(); err != nil {
				logger.Warn("reloading session", slog.Any("error", err))

				continue
			}

			logger.Info("session file changed, session reloaded",
				slog.String("op", ev.Op.String()),
			)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			// Backoff prevents a tight loop under sustained errors,
			// e.g. a kernel event buffer overflow.
			logger.Warn("session watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if err := sleepInterruptible(ctx, errBackoff); err != nil {
				return err
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

// saveSnapshotLoop flushes the catalog snapshot on an interval so a
// crash does not lose a long watch's accumulated cache.
func saveSnapshotLoop(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	ticker := time.NewTicker(snapshotSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := eng.SaveSnapshot(ctx); err != nil {
				logger.Warn("saving catalog snapshot", slog.Any("error", err))
			}
		}
	}
}

// sleepInterruptible waits for d or until ctx is canceled.
func sleepInterruptible(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
