package benchmark

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// TagLayout is the UTC timestamp embedded in generated object names.
const TagLayout = "20060102T150405Z"

// NowTag formats t (in UTC) for object names.
func NowTag(t time.Time) string {
	return t.UTC().Format(TagLayout)
}

// NormalizePrefix trims blanks and slashes so keys never start with "/".
func NormalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// MakeKey joins the normalized prefix and name.
func MakeKey(prefix, name string) string {
	p := NormalizePrefix(prefix)
	if p == "" {
		return name
	}
	return path.Join(p, name)
}

// GenerateObjectName creates the name of the index-th object of a given
// size, e.g. test_10GB_20250101T120000Z_00.bin.
func GenerateObjectName(size int64, tag string, index int) string {
	return fmt.Sprintf("test_%s_%s_%02d.bin", SizeLabel(size), tag, index)
}

// SizeLabel renders whole GiB as "<n>GB", whole MiB as "<n>MB" and anything
// else in bytes.
func SizeLabel(size int64) string {
	switch {
	case size > 0 && size%humanize.GiByte == 0:
		return fmt.Sprintf("%dGB", size/humanize.GiByte)
	case size > 0 && size%humanize.MiByte == 0:
		return fmt.Sprintf("%dMB", size/humanize.MiByte)
	default:
		return fmt.Sprintf("%dB", size)
	}
}
