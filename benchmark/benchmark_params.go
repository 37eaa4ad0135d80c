package benchmark

import (
	"time"

	"github.com/quickshadows/scripts/config"
)

// BenchmarkParams holds the parameters of one benchmark run
type BenchmarkParams struct {
	BucketName     string
	Prefix         string
	Sizes          []int64 // object sizes in bytes
	FilesPerSize   int     // objects uploaded per size
	PartSize       int64
	ParallelParts  int     // concurrent part uploads per object
	UploadRate     float64 // bytes/s, 0 = unlimited
	DownloadRate   float64 // bytes/s, 0 = unlimited
	IOChunk        int64   // generation/metering granularity for uploads
	DownloadChunk  int64   // read/metering granularity for downloads
	DownloadCycles int     // downloads per uploaded key
}

// ParamsFromConfig maps a validated configuration onto run parameters.
func ParamsFromConfig(cfg *config.Config) BenchmarkParams {
	return BenchmarkParams{
		BucketName:     cfg.Bucket,
		Prefix:         cfg.Prefix,
		Sizes:          cfg.Sizes,
		FilesPerSize:   cfg.FilesPerSize,
		PartSize:       cfg.PartSize,
		ParallelParts:  max(cfg.ParallelParts, 1),
		UploadRate:     cfg.UploadRate(),
		DownloadRate:   cfg.DownloadRate(),
		IOChunk:        cfg.IOChunk,
		DownloadChunk:  cfg.DownloadChunk,
		DownloadCycles: cfg.DownloadCycles,
	}
}

// ObjectCount is the number of objects a run uploads.
func (p BenchmarkParams) ObjectCount() int {
	return len(p.Sizes) * p.FilesPerSize
}

// TotalBytes is the payload a run uploads.
func (p BenchmarkParams) TotalBytes() int64 {
	var total int64
	for _, size := range p.Sizes {
		total += size * int64(p.FilesPerSize)
	}
	return total
}

// MinUploadTime is the shortest time the upload rate allows, ignoring the
// initial burst. Zero when unlimited.
func (p BenchmarkParams) MinUploadTime() time.Duration {
	if p.UploadRate <= 0 {
		return 0
	}
	return time.Duration(float64(p.TotalBytes()) / p.UploadRate * float64(time.Second))
}
