package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.AddBytes(Upload, 10)
		c.ObservePart(time.Second, nil)
		c.ObserveCycle(time.Second)
		c.SetThrottled(Download, time.Second)
		c.IncAborts()
	})
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.AddBytes(Upload, 100)
	c.AddBytes(Upload, 50)
	c.AddBytes(Download, 7)
	c.AddBytes(Download, 0)
	assert.Equal(t, 150.0, testutil.ToFloat64(c.Bytes.WithLabelValues(Upload)))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.Bytes.WithLabelValues(Download)))

	c.ObservePart(time.Second, nil)
	c.ObservePart(time.Second, errors.New("SlowDown"))
	c.ObservePart(time.Second, errors.New("SlowDown"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Parts.WithLabelValues(StatusOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Parts.WithLabelValues(StatusFailed)))

	c.IncAborts()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Aborts))
}

func TestSetThrottledAddsDelta(t *testing.T) {
	c := NewCollector()

	c.SetThrottled(Upload, 2*time.Second)
	c.SetThrottled(Upload, 3*time.Second)
	c.SetThrottled(Upload, time.Second)
	assert.InDelta(t, 3.0, testutil.ToFloat64(c.Throttled.WithLabelValues(Upload)), 1e-9)

	c.SetThrottled(Download, 500*time.Millisecond)
	assert.InDelta(t, 0.5, testutil.ToFloat64(c.Throttled.WithLabelValues(Download)), 1e-9)
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.AddBytes(Download, 42)
	c.ObserveCycle(2 * time.Second)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `s3bench_bytes_total{direction="download"} 42`)
	assert.Contains(t, string(body), "s3bench_download_cycle_duration_seconds_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.AddBytes(Upload, 1)
	assert.Zero(t, testutil.ToFloat64(b.Bytes.WithLabelValues(Upload)))
}
