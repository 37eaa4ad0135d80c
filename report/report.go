package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/quickshadows/scripts/benchmark"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.Bold)
)

// DisplayResults shows the summary of benchmark performance. runErr is the
// error the run stopped with, if any; the partial report is still printed.
func DisplayResults(w io.Writer, rep *benchmark.RunReport, runErr error) {
	if rep == nil {
		return
	}

	headColor.Fprintf(w, "\nUPLOAD Results (run %s):\n", rep.RunID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tPARTS\tSTATE\tDURATION\tTHROUGHPUT")
	for _, s := range rep.Uploads {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.Key, humanize.IBytes(uint64(s.Size)), len(s.Parts), s.State,
			roundDuration(s.Elapsed), Throughput(s.Rate()))
	}
	tw.Flush()

	if len(rep.Cycles) > 0 {
		headColor.Fprintln(w, "\nDOWNLOAD Results:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tCYCLE\tBYTES\tDURATION\tTHROUGHPUT")
		for _, c := range rep.Cycles {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
				c.Key, c.Cycle, humanize.IBytes(uint64(c.Bytes)),
				roundDuration(c.Elapsed), Throughput(c.Rate()))
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\nDuration: %s\n", roundDuration(rep.Elapsed))
	fmt.Fprintf(w, "Uploaded: %s in %d objects, avg %s\n",
		humanize.IBytes(uint64(rep.UploadedBytes())), completedUploads(rep), Throughput(avgUploadRate(rep)))
	fmt.Fprintf(w, "Downloaded: %s in %d cycles, avg %s\n",
		humanize.IBytes(uint64(rep.DownloadedBytes())), len(rep.Cycles), Throughput(avgDownloadRate(rep)))

	if runErr != nil {
		failColor.Fprintf(w, "FAILED: %v\n", runErr)
		return
	}
	okColor.Fprintln(w, "DONE")
}

// DisplayCleanup summarizes a cleanup or purge pass.
func DisplayCleanup(w io.Writer, operation string, res benchmark.CleanupResult) {
	perSecond := 0.0
	if res.Elapsed > 0 {
		perSecond = float64(res.Removed) / res.Elapsed.Seconds()
	}

	fmt.Fprintf(w, "\n%s Results:\n", operation)
	fmt.Fprintf(w, "Duration: %s\n", roundDuration(res.Elapsed))
	fmt.Fprintf(w, "Found: %d\n", res.Found)
	fmt.Fprintf(w, "Removed: %d (%.2f/s)\n", res.Removed, perSecond)
	if res.Failed > 0 {
		failColor.Fprintf(w, "Failed: %d\n", res.Failed)
	}
}

// Throughput renders bytes per second in binary units.
func Throughput(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func completedUploads(rep *benchmark.RunReport) int {
	n := 0
	for _, s := range rep.Uploads {
		if s.State == benchmark.StateCompleted {
			n++
		}
	}
	return n
}

// averages are total bytes over total transfer time, not the mean of rates
func avgUploadRate(rep *benchmark.RunReport) float64 {
	var elapsed time.Duration
	for _, s := range rep.Uploads {
		if s.State == benchmark.StateCompleted {
			elapsed += s.Elapsed
		}
	}
	return rate(rep.UploadedBytes(), elapsed)
}

func avgDownloadRate(rep *benchmark.RunReport) float64 {
	var elapsed time.Duration
	for _, c := range rep.Cycles {
		elapsed += c.Elapsed
	}
	return rate(rep.DownloadedBytes(), elapsed)
}

func rate(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}

func roundDuration(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
