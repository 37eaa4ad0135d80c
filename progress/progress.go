package progress

import (
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/minio/pkg/console"
)

const (
	countTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`
	bytesTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{speed . "%s/s"}} {{rtime . "ETA %s"}}`
)

// ProgressBar wrapper structure
type ProgressBar struct {
	*pb.ProgressBar
}

// NewProgressBar - instantiate a progress bar counting items.
func NewProgressBar(total int64) *ProgressBar {
	return newBar(total, countTemplate, false, nil)
}

// NewBytesBar instantiates a progress bar counting bytes, rendered with
// binary units.
func NewBytesBar(total int64, out io.Writer) *ProgressBar {
	return newBar(total, bytesTemplate, true, out)
}

func newBar(total int64, tmpl string, bytes bool, out io.Writer) *ProgressBar {
	// Progress bar specific theme customization.
	console.SetColor("Bar", color.New(color.FgGreen, color.Bold))

	bar := pb.New64(total)
	bar.SetRefreshRate(time.Millisecond * 125)
	bar.SetTemplateString(tmpl)
	if bytes {
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, false)
	}
	if out != nil {
		bar.SetWriter(out)
	}

	bar.Start()
	return &ProgressBar{ProgressBar: bar}
}

// SetCaption sets the caption of the progress bar.
func (p *ProgressBar) SetCaption(caption string) *ProgressBar {
	p.ProgressBar.Set("prefix", console.Colorize("Bar", caption))
	return p
}
