package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/progress"
	"golang.org/x/sync/errgroup"
)

const defaultJanitorConcurrency = 16

type JanitorOptions struct {
	Bucket      string
	Concurrency int
	// OlderThan skips multipart uploads initiated more recently, so a
	// benchmark still running against the same prefix is left alone.
	OlderThan    time.Duration
	DryRun       bool
	ShowProgress bool
	Logger       *slog.Logger
	Now          func() time.Time
}

// CleanupResult summarizes one cleanup pass.
type CleanupResult struct {
	Found   int
	Removed int
	Failed  int
	Elapsed time.Duration
}

// Janitor removes what benchmark runs leave behind: unfinished multipart
// uploads and the benchmark objects themselves.
type Janitor struct {
	store backend.StorageJanitor
	opts  JanitorOptions
}

func NewJanitor(store backend.StorageJanitor, opts JanitorOptions) *Janitor {
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultJanitorConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Janitor{store: store, opts: opts}
}

// AbortStale aborts every pending multipart upload under prefix.
func (j *Janitor) AbortStale(ctx context.Context, prefix string) (CleanupResult, error) {
	start := time.Now()
	uploads, err := j.store.ListMultipartUploads(ctx, j.opts.Bucket, listPrefix(prefix))
	if err != nil {
		return CleanupResult{}, fmt.Errorf("list multipart uploads: %w", err)
	}

	cutoff := j.opts.Now().Add(-j.opts.OlderThan)
	var stale []backend.PendingUpload
	for _, up := range uploads {
		if j.opts.OlderThan > 0 && !up.Initiated.IsZero() && up.Initiated.After(cutoff) {
			j.opts.Logger.Debug("CLEANUP skip recent", "key", up.Key, "upload_id", up.UploadID, "initiated", up.Initiated)
			continue
		}
		stale = append(stale, up)
	}
	if len(stale) == 0 {
		j.opts.Logger.Info("CLEANUP nothing to abort", "prefix", prefix)
		return CleanupResult{Elapsed: time.Since(start)}, nil
	}

	res, err := forEach(ctx, j, "Aborting", stale, func(ctx context.Context, up backend.PendingUpload) error {
		j.opts.Logger.Info("CLEANUP abort", "key", up.Key, "upload_id", up.UploadID, "dry_run", j.opts.DryRun)
		if j.opts.DryRun {
			return nil
		}
		return j.store.AbortMultipartUpload(ctx, j.opts.Bucket, up.Key, up.UploadID)
	})
	res.Elapsed = time.Since(start)
	return res, err
}

// Purge deletes every object under prefix.
func (j *Janitor) Purge(ctx context.Context, prefix string) (CleanupResult, error) {
	start := time.Now()
	objects, err := j.store.ListObjects(ctx, j.opts.Bucket, listPrefix(prefix))
	if err != nil {
		return CleanupResult{}, fmt.Errorf("list objects: %w", err)
	}
	if len(objects) == 0 {
		j.opts.Logger.Info("PURGE nothing to delete", "prefix", prefix)
		return CleanupResult{Elapsed: time.Since(start)}, nil
	}

	res, err := forEach(ctx, j, "Deleting", objects, func(ctx context.Context, obj backend.ObjectInfo) error {
		j.opts.Logger.Debug("PURGE delete", "key", obj.Key, "size", obj.Size, "dry_run", j.opts.DryRun)
		if j.opts.DryRun {
			return nil
		}
		return j.store.DeleteObject(ctx, j.opts.Bucket, obj.Key)
	})
	res.Elapsed = time.Since(start)
	return res, err
}

// forEach runs fn over items with the configured concurrency. Individual
// failures are logged and counted; they do not stop the other items.
func forEach[T any](ctx context.Context, j *Janitor, caption string, items []T, fn func(context.Context, T) error) (CleanupResult, error) {
	var bar *progress.ProgressBar
	if j.opts.ShowProgress {
		bar = progress.NewProgressBar(int64(len(items))).SetCaption(caption)
	}

	var removed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Concurrency)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(gctx, item); err != nil {
				failed.Add(1)
				j.opts.Logger.Error(caption+" failed", "item", item, "err", err)
			} else {
				removed.Add(1)
			}
			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		bar.Finish()
	}

	res := CleanupResult{
		Found:   len(items),
		Removed: int(removed.Load()),
		Failed:  int(failed.Load()),
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Failed > 0 {
		return res, fmt.Errorf("%d of %d removals failed", res.Failed, res.Found)
	}
	return res, nil
}

// listPrefix keeps the trailing slash of a directory-like prefix so
// "loadtest" does not also match "loadtest-old/".
func listPrefix(prefix string) string {
	p := NormalizePrefix(prefix)
	if p == "" {
		return ""
	}
	return p + "/"
}
