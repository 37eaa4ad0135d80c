package benchmark

import "github.com/quickshadows/scripts/config"

// S3-compatible multipart limits.
const (
	MinPartSize = config.MinPartSize
	MaxParts    = config.MaxParts
)

// PartDescriptor is the byte range of one part. Numbers start at 1.
type PartDescriptor struct {
	Number int
	Offset int64
	Length int64
}

// SplitParts covers [0, size) with ceil(size/partSize) contiguous parts;
// every part but the last is exactly partSize long.
func SplitParts(size, partSize int64) []PartDescriptor {
	if size <= 0 || partSize <= 0 {
		return nil
	}
	count := (size + partSize - 1) / partSize
	parts := make([]PartDescriptor, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * partSize
		parts = append(parts, PartDescriptor{
			Number: int(i) + 1,
			Offset: offset,
			Length: min(partSize, size-offset),
		})
	}
	return parts
}

// PartCount is len(SplitParts(size, partSize)) without the allocation.
func PartCount(size, partSize int64) int64 {
	if size <= 0 || partSize <= 0 {
		return 0
	}
	return (size + partSize - 1) / partSize
}
