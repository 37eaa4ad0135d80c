package benchmark

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/metrics"
	"github.com/quickshadows/scripts/progress"
)

// CycleResult is one full download of one object.
type CycleResult struct {
	Key     string
	Cycle   int
	Bytes   int64
	Elapsed time.Duration
}

// Rate is the average download throughput in bytes per second.
func (c CycleResult) Rate() float64 {
	if c.Elapsed <= 0 {
		return 0
	}
	return float64(c.Bytes) / c.Elapsed.Seconds()
}

type DownloaderOptions struct {
	Bucket string
	// Limiter meters received bytes. Nil means unlimited.
	Limiter   *TokenBucket
	ChunkSize int64
	Logger    *slog.Logger
	Progress  *progress.Reporter
	Metrics   *metrics.Collector
}

// Downloader streams objects and discards their bytes.
type Downloader struct {
	store backend.Storage
	opts  DownloaderOptions
}

func NewDownloader(store backend.Storage, opts DownloaderOptions) *Downloader {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = progress.NewReporter(opts.Logger, progress.DefaultInterval)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 * humanize.MiByte
	}
	return &Downloader{store: store, opts: opts}
}

// DownloadOnce reads key to the end once. cycle only labels the events.
func (d *Downloader) DownloadOnce(ctx context.Context, key string, cycle int) (CycleResult, error) {
	log := d.opts.Logger.With("key", key, "cycle", cycle)
	result := CycleResult{Key: key, Cycle: cycle}

	// the size only feeds progress percentages
	total := int64(-1)
	if size, err := d.store.HeadObject(ctx, d.opts.Bucket, key); err == nil {
		total = size
	} else {
		log.Debug("head failed, size unknown", "err", err)
	}

	log.Info("DOWNLOAD start",
		"size", sizeString(total),
		"limit", rateString(d.opts.Limiter.Rate()),
	)
	start := time.Now()

	fail := func(err error) (CycleResult, error) {
		result.Elapsed = time.Since(start)
		err = &TransferError{Phase: PhaseDownload, Key: key, Err: err}
		log.Error("DOWNLOAD error", "bytes", result.Bytes, "err", err)
		return result, err
	}

	body, err := d.store.GetObject(ctx, d.opts.Bucket, key)
	if err != nil {
		return fail(err)
	}
	defer body.Close()

	tracker := d.opts.Progress.Track("DOWNLOAD", key, total)
	defer tracker.Finish()

	buf := make([]byte, d.opts.ChunkSize)
	for {
		n, err := io.ReadFull(body, buf)
		if n > 0 {
			if aerr := d.opts.Limiter.Acquire(ctx, int64(n)); aerr != nil {
				return fail(aerr)
			}
			result.Bytes += int64(n)
			tracker.Add(int64(n))
			d.opts.Metrics.AddBytes(metrics.Download, int64(n))
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
	}

	result.Elapsed = time.Since(start)
	d.opts.Metrics.ObserveCycle(result.Elapsed)
	d.opts.Metrics.SetThrottled(metrics.Download, d.opts.Limiter.Waited())

	log.Info("DOWNLOAD done",
		"bytes", humanize.IBytes(uint64(result.Bytes)),
		"elapsed", result.Elapsed.Round(time.Millisecond),
		"rate", humanize.IBytes(uint64(result.Rate()))+"/s",
	)
	return result, nil
}

func sizeString(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}
