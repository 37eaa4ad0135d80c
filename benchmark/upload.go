package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/metrics"
	"github.com/quickshadows/scripts/progress"
	"golang.org/x/sync/errgroup"
)

const defaultAbortTimeout = 30 * time.Second

// TransferJob describes one object to upload.
type TransferJob struct {
	Key         string
	Size        int64
	PartSize    int64
	Parallelism int
}

// Validate rejects jobs that could never complete, before any network call.
func (j TransferJob) Validate() error {
	switch {
	case j.Key == "":
		return invalidJob("empty key")
	case j.Size <= 0:
		return invalidJob("size must be positive (got %d)", j.Size)
	case j.PartSize <= 0:
		return invalidJob("part size must be positive (got %d)", j.PartSize)
	case j.Parallelism < 1:
		return invalidJob("parallelism must be >= 1 (got %d)", j.Parallelism)
	case j.PartSize < MinPartSize && j.Size > j.PartSize:
		return invalidJob("part size %s below minimum %s", humanize.IBytes(uint64(j.PartSize)), humanize.IBytes(MinPartSize))
	}
	if n := PartCount(j.Size, j.PartSize); n > MaxParts {
		return invalidJob("%d parts exceeds the limit of %d, raise the part size", n, MaxParts)
	}
	return nil
}

// SessionState is the lifecycle of a multipart upload.
type SessionState int

const (
	StateInitiated SessionState = iota
	StatePartsInFlight
	StateCompleted
	StateAborted
)

func (s SessionState) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StatePartsInFlight:
		return "parts-in-flight"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// PartResult is one acknowledged part.
type PartResult struct {
	Number   int
	ETag     string
	Bytes    int64
	Duration time.Duration
}

// UploadSession is the outcome of one multipart upload.
type UploadSession struct {
	Key      string
	UploadID string
	State    SessionState
	Size     int64
	Parts    []PartResult // ascending by Number once completed
	Elapsed  time.Duration
}

// Rate is the average upload throughput in bytes per second.
func (s *UploadSession) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Size) / s.Elapsed.Seconds()
}

type UploaderOptions struct {
	Bucket string
	// Limiter meters generated bytes. Nil means unlimited.
	Limiter *TokenBucket
	// IOChunk is the largest slice generated (and metered) at once.
	IOChunk int64
	// Pattern repeated as the payload; a zero byte when empty.
	Pattern      []byte
	Logger       *slog.Logger
	Progress     *progress.Reporter
	Metrics      *metrics.Collector
	AbortTimeout time.Duration
}

// Uploader runs multipart uploads of synthetic payloads.
type Uploader struct {
	store backend.Storage
	opts  UploaderOptions
}

func NewUploader(store backend.Storage, opts UploaderOptions) *Uploader {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = progress.NewReporter(opts.Logger, progress.DefaultInterval)
	}
	if opts.IOChunk <= 0 {
		opts.IOChunk = 8 * humanize.MiByte
	}
	if opts.AbortTimeout <= 0 {
		opts.AbortTimeout = defaultAbortTimeout
	}
	return &Uploader{store: store, opts: opts}
}

// Upload opens a multipart upload for job.Key, sends every part and completes
// it. Any failure after the upload was opened aborts it before the error is
// returned; the returned session then reports StateAborted.
func (u *Uploader) Upload(ctx context.Context, job TransferJob) (*UploadSession, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	log := u.opts.Logger.With("key", job.Key)
	parts := SplitParts(job.Size, job.PartSize)

	log.Info("UPLOAD start",
		"size", humanize.IBytes(uint64(job.Size)),
		"parts", len(parts),
		"part_size", humanize.IBytes(uint64(job.PartSize)),
		"parallel", job.Parallelism,
		"limit", rateString(u.opts.Limiter.Rate()),
	)
	start := time.Now()

	uploadID, err := u.store.CreateMultipartUpload(ctx, u.opts.Bucket, job.Key)
	if err != nil {
		err = &TransferError{Phase: PhaseCreate, Key: job.Key, Err: err}
		log.Error("UPLOAD error", "err", err)
		return nil, err
	}
	session := &UploadSession{
		Key:      job.Key,
		UploadID: uploadID,
		State:    StateInitiated,
		Size:     job.Size,
	}
	log = log.With("upload_id", uploadID)

	tracker := u.opts.Progress.Track("UPLOAD", job.Key, job.Size)
	defer tracker.Finish()

	session.State = StatePartsInFlight
	results, err := u.sendParts(ctx, job, uploadID, parts, tracker)
	if err != nil {
		session.Elapsed = time.Since(start)
		u.abort(ctx, log, session, err)
		return session, err
	}

	completed := make([]backend.CompletedPart, len(results))
	for i, r := range results {
		completed[i] = backend.CompletedPart{PartNumber: r.Number, ETag: r.ETag}
	}
	if err := u.store.CompleteMultipartUpload(ctx, u.opts.Bucket, job.Key, uploadID, completed); err != nil {
		err = &TransferError{Phase: PhaseComplete, Key: job.Key, Err: err}
		session.Elapsed = time.Since(start)
		u.abort(ctx, log, session, err)
		return session, err
	}

	session.State = StateCompleted
	session.Parts = results
	session.Elapsed = time.Since(start)
	u.opts.Metrics.SetThrottled(metrics.Upload, u.opts.Limiter.Waited())

	log.Info("UPLOAD done",
		"size", humanize.IBytes(uint64(session.Size)),
		"elapsed", session.Elapsed.Round(time.Millisecond),
		"rate", humanize.IBytes(uint64(session.Rate()))+"/s",
	)
	return session, nil
}

func (u *Uploader) sendParts(ctx context.Context, job TransferJob, uploadID string, parts []PartDescriptor, tracker *progress.Tracker) ([]PartResult, error) {
	pool := newBufferPool(partBufferSize(job))

	var mu sync.Mutex
	results := make(map[int]PartResult, len(parts))
	send := func(ctx context.Context, part PartDescriptor) error {
		res, err := u.sendPart(ctx, job.Key, uploadID, part, pool)
		if err != nil {
			return err
		}
		mu.Lock()
		results[part.Number] = res
		mu.Unlock()
		tracker.Add(res.Bytes)
		return nil
	}

	if job.Parallelism <= 1 {
		for _, part := range parts {
			if err := send(ctx, part); err != nil {
				return nil, err
			}
		}
		return orderedResults(results, len(parts))
	}

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan PartDescriptor)
	g.Go(func() error {
		defer close(work)
		for _, part := range parts {
			select {
			case work <- part:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for range min(job.Parallelism, len(parts)) {
		g.Go(func() error {
			for part := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := send(gctx, part); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return orderedResults(results, len(parts))
}

// partBufferSize is the largest part of job; a single small part never
// needs a full part-size buffer.
func partBufferSize(job TransferJob) int64 {
	return min(job.PartSize, job.Size)
}

// sendPart generates one part through the limiter into a pooled buffer and
// uploads it with an exact content length.
func (u *Uploader) sendPart(ctx context.Context, key, uploadID string, part PartDescriptor, pool *bufferPool) (PartResult, error) {
	start := time.Now()
	bufp := pool.Get(part.Length)
	defer pool.Put(bufp)

	stream := NewStream(ctx, part.Length, u.opts.IOChunk, u.opts.Limiter, u.opts.Pattern)
	if _, err := io.ReadFull(stream, *bufp); err != nil {
		u.opts.Metrics.ObservePart(time.Since(start), err)
		return PartResult{}, &TransferError{Phase: PhasePart, Key: key, Part: part.Number, Err: err}
	}

	etag, err := u.store.UploadPart(ctx, u.opts.Bucket, key, uploadID, part.Number, bytes.NewReader(*bufp), part.Length)
	elapsed := time.Since(start)
	u.opts.Metrics.ObservePart(elapsed, err)
	if err != nil {
		return PartResult{}, &TransferError{Phase: PhasePart, Key: key, Part: part.Number, Err: err}
	}
	u.opts.Metrics.AddBytes(metrics.Upload, part.Length)

	return PartResult{
		Number:   part.Number,
		ETag:     etag,
		Bytes:    part.Length,
		Duration: elapsed,
	}, nil
}

// abort is best effort: it runs on a context detached from ctx so that a
// cancelled run still releases the server-side parts, and its own failure is
// logged without replacing cause.
func (u *Uploader) abort(ctx context.Context, log *slog.Logger, session *UploadSession, cause error) {
	log.Error("UPLOAD error", "err", cause)

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.opts.AbortTimeout)
	defer cancel()

	log.Warn("UPLOAD abort")
	if err := u.store.AbortMultipartUpload(actx, u.opts.Bucket, session.Key, session.UploadID); err != nil {
		log.Error("UPLOAD abort failed", "err", err)
	}
	session.State = StateAborted
	u.opts.Metrics.IncAborts()
}

func orderedResults(results map[int]PartResult, want int) ([]PartResult, error) {
	ordered := make([]PartResult, 0, len(results))
	for _, r := range results {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	if len(ordered) != want {
		return nil, fmt.Errorf("have %d of %d parts", len(ordered), want)
	}
	for i, r := range ordered {
		if r.Number != i+1 {
			return nil, fmt.Errorf("part %d missing", i+1)
		}
	}
	return ordered, nil
}

func rateString(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}
