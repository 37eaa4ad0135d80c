package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/metrics"
	"github.com/quickshadows/scripts/progress"
)

// RunReport collects everything a run measured, in execution order.
type RunReport struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration
	Uploads []*UploadSession
	Cycles  []CycleResult
}

// UploadedBytes sums the completed uploads.
func (r *RunReport) UploadedBytes() int64 {
	var total int64
	for _, s := range r.Uploads {
		if s.State == StateCompleted {
			total += s.Size
		}
	}
	return total
}

// DownloadedBytes sums every download cycle.
func (r *RunReport) DownloadedBytes() int64 {
	var total int64
	for _, c := range r.Cycles {
		total += c.Bytes
	}
	return total
}

type RunnerOptions struct {
	Logger   *slog.Logger
	Progress *progress.Reporter
	Metrics  *metrics.Collector
	// Now stamps object names; time.Now when nil.
	Now func() time.Time
}

// Runner uploads every requested object, then downloads each one
// DownloadCycles times. Nothing runs concurrently except the parts of a
// single upload.
type Runner struct {
	store  backend.Storage
	params BenchmarkParams
	opts   RunnerOptions

	uploader   *Uploader
	downloader *Downloader
}

func NewRunner(store backend.Storage, params BenchmarkParams, opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = progress.NewReporter(opts.Logger, progress.DefaultInterval)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// one bucket per direction, shared by every transfer of the run
	uploadLimiter := NewTokenBucket(params.UploadRate)
	downloadLimiter := NewTokenBucket(params.DownloadRate)

	return &Runner{
		store:  store,
		params: params,
		opts:   opts,
		uploader: NewUploader(store, UploaderOptions{
			Bucket:   params.BucketName,
			Limiter:  uploadLimiter,
			IOChunk:  params.IOChunk,
			Logger:   opts.Logger,
			Progress: opts.Progress,
			Metrics:  opts.Metrics,
		}),
		downloader: NewDownloader(store, DownloaderOptions{
			Bucket:    params.BucketName,
			Limiter:   downloadLimiter,
			ChunkSize: params.DownloadChunk,
			Logger:    opts.Logger,
			Progress:  opts.Progress,
			Metrics:   opts.Metrics,
		}),
	}
}

// Run executes the benchmark. It stops at the first failure and returns the
// report gathered so far together with the error.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	log := r.opts.Logger.With("run_id", report.RunID)
	defer func() { report.Elapsed = time.Since(report.Started) }()

	// every job is checked before the first upload is opened
	jobs, err := r.jobs()
	if err != nil {
		return report, err
	}

	attrs := []any{
		"bucket", r.params.BucketName,
		"prefix", NormalizePrefix(r.params.Prefix),
		"objects", r.params.ObjectCount(),
		"total", humanize.IBytes(uint64(r.params.TotalBytes())),
		"part_size", humanize.IBytes(uint64(r.params.PartSize)),
		"parallel_parts", r.params.ParallelParts,
		"upload_limit", rateString(r.params.UploadRate),
		"download_limit", rateString(r.params.DownloadRate),
		"download_cycles", r.params.DownloadCycles,
	}
	if d := r.params.MinUploadTime(); d > 0 {
		attrs = append(attrs, "min_upload_time", d.Round(time.Second))
	}
	log.Info("CONFIG", attrs...)

	for _, job := range jobs {
		session, err := r.uploader.Upload(ctx, job)
		if session != nil {
			report.Uploads = append(report.Uploads, session)
		}
		if err != nil {
			return report, fmt.Errorf("upload: %w", err)
		}
	}

	for _, session := range report.Uploads {
		for cycle := 1; cycle <= r.params.DownloadCycles; cycle++ {
			log.Info("DOWNLOAD cycle_start", "key", session.Key, "cycle", fmt.Sprintf("%d/%d", cycle, r.params.DownloadCycles))
			result, err := r.downloader.DownloadOnce(ctx, session.Key, cycle)
			if err != nil {
				return report, fmt.Errorf("download cycle %d: %w", cycle, err)
			}
			report.Cycles = append(report.Cycles, result)
		}
	}

	log.Info("DONE",
		"uploaded", humanize.IBytes(uint64(report.UploadedBytes())),
		"downloaded", humanize.IBytes(uint64(report.DownloadedBytes())),
		"elapsed", time.Since(report.Started).Round(time.Millisecond),
	)
	return report, nil
}

// jobs builds the upload job of every object of the run, in upload order.
// Object names are stamped when the run starts.
func (r *Runner) jobs() ([]TransferJob, error) {
	tag := NowTag(r.opts.Now())
	var jobs []TransferJob
	for _, size := range r.params.Sizes {
		for i := 0; i < r.params.FilesPerSize; i++ {
			job := TransferJob{
				Key:         MakeKey(r.params.Prefix, GenerateObjectName(size, tag, i)),
				Size:        size,
				PartSize:    r.params.PartSize,
				Parallelism: max(r.params.ParallelParts, 1),
			}
			if err := job.Validate(); err != nil {
				return nil, fmt.Errorf("object %s: %w", job.Key, err)
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}
