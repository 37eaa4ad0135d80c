package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Provider:         "s3",
		Bucket:           "bench",
		Prefix:           DefaultPrefix,
		Sizes:            []int64{1 << 30},
		FilesPerSize:     1,
		PartSize:         64 << 20,
		ParallelParts:    1,
		IOChunk:          8 << 20,
		DownloadChunk:    8 << 20,
		DownloadCycles:   3,
		ProgressInterval: DefaultProgressInterval,
	}
}

func TestParseSizes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int64
		wantErr bool
	}{
		{name: "bare numbers are GiB", in: "1,10", want: []int64{1 << 30, 10 << 30}},
		{name: "humanized", in: "512MiB, 1GB", want: []int64{512 << 20, 1_000_000_000}},
		{name: "fractional GiB", in: "0.5", want: []int64{512 << 20}},
		{name: "skips empty items", in: "1,,", want: []int64{1 << 30}},
		{name: "empty list", in: "", want: nil},
		{name: "garbage", in: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSizes(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMbpsToBytesPerSec(t *testing.T) {
	assert.Equal(t, 0.0, MbpsToBytesPerSec(0))
	assert.Equal(t, 0.0, MbpsToBytesPerSec(-5))
	assert.Equal(t, float64(1<<20), MbpsToBytesPerSec(8))

	cfg := validConfig()
	cfg.UploadMbps = 80
	assert.Equal(t, float64(10<<20), cfg.UploadRate())
	assert.Equal(t, 0.0, cfg.DownloadRate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "gcs" }, wantErr: "provider"},
		{name: "missing bucket", mutate: func(c *Config) { c.Bucket = "" }, wantErr: "bucket required"},
		{name: "no sizes", mutate: func(c *Config) { c.Sizes = nil }, wantErr: "object size"},
		{name: "zero size", mutate: func(c *Config) { c.Sizes = []int64{0} }, wantErr: "must be positive"},
		{name: "files per size", mutate: func(c *Config) { c.FilesPerSize = 0 }, wantErr: "files_per_size"},
		{name: "part size", mutate: func(c *Config) { c.PartSize = 0 }, wantErr: "part_size"},
		{name: "part size below minimum", mutate: func(c *Config) {
			c.Sizes = []int64{1 << 20, 10 << 20}
			c.PartSize = 1 << 20
		}, wantErr: "below minimum"},
		{name: "small part size for single-part objects", mutate: func(c *Config) {
			c.Sizes = []int64{1 << 20}
			c.PartSize = 1 << 20
		}},
		{name: "too many parts", mutate: func(c *Config) {
			c.Sizes = []int64{(MaxParts + 1) * MinPartSize}
			c.PartSize = MinPartSize
		}, wantErr: "raise part_size"},
		{name: "parallelism", mutate: func(c *Config) { c.ParallelParts = 0 }, wantErr: "parallel_parts"},
		{name: "negative cycles", mutate: func(c *Config) { c.DownloadCycles = -1 }, wantErr: "download_cycles"},
		{name: "negative rate", mutate: func(c *Config) { c.UploadMbps = -1 }, wantErr: "rate limits"},
		{name: "addressing style", mutate: func(c *Config) { c.AddressingStyle = "dns" }, wantErr: "addressing_style"},
		{name: "minio needs endpoint", mutate: func(c *Config) { c.Provider = "minio" }, wantErr: "endpoint required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	v := viper.New()
	v.Set("provider", "S3")
	v.Set("bucket", "bench")
	v.Set("sizes", "1,256MiB")
	v.Set("files_per_size", 2)
	v.Set("part_size", "16MiB")
	v.Set("io_chunk", "1MiB")
	v.Set("download_chunk", "4MiB")
	v.Set("download_cycles", 5)
	v.Set("parallel_parts", 4)
	v.Set("upload_mbps", 100.0)
	v.Set("progress_interval", "500ms")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Provider)
	assert.Equal(t, []int64{1 << 30, 256 << 20}, cfg.Sizes)
	assert.Equal(t, int64(16<<20), cfg.PartSize)
	assert.Equal(t, int64(1<<20), cfg.IOChunk)
	assert.Equal(t, int64(4<<20), cfg.DownloadChunk)
	assert.Equal(t, 5, cfg.DownloadCycles)
	assert.Equal(t, 4, cfg.ParallelParts)
	assert.Equal(t, 100.0, cfg.UploadMbps)
	assert.Equal(t, 500*time.Millisecond, cfg.ProgressInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadByteQuantity(t *testing.T) {
	v := viper.New()
	v.Set("sizes", "1")
	v.Set("part_size", "big")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part_size")
}

func TestBindEnvLegacyNames(t *testing.T) {
	t.Setenv("S3_ENDPOINT_URL", "https://s3.example.test")
	t.Setenv("S3_ADDRESSING_STYLE", "virtual")
	t.Setenv("S3BENCH_BUCKET", "from-env")

	v := viper.New()
	BindEnv(v)

	assert.Equal(t, "https://s3.example.test", v.GetString("endpoint"))
	assert.Equal(t, "virtual", v.GetString("addressing_style"))
	assert.Equal(t, "from-env", v.GetString("bucket"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("S3BENCH_DOTENV_PROBE=from-file\n"), 0o600))
	t.Setenv("S3BENCH_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("S3BENCH_DOTENV_PROBE"))

	used, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "from-file", os.Getenv("S3BENCH_DOTENV_PROBE"))

	used, err = LoadDotEnv(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, used)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("S3BENCH_DOTENV_KEEP=file\n"), 0o600))
	t.Setenv("S3BENCH_DOTENV_KEEP", "process")

	_, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "process", os.Getenv("S3BENCH_DOTENV_KEEP"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/.oci/config")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".oci/config"), got)

	got, err = expandHome("/etc/oci/config")
	require.NoError(t, err)
	assert.Equal(t, "/etc/oci/config", got)
}

func TestLoadOCIConfigMissingFile(t *testing.T) {
	_, err := LoadOCIConfig(filepath.Join(t.TempDir(), "nope"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("bucket", "bench")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Provider)
	assert.Equal(t, DefaultPrefix, cfg.Prefix)
	assert.Equal(t, []int64{1 << 30, 10 << 30, 100 << 30}, cfg.Sizes)
	assert.Equal(t, int64(64<<20), cfg.PartSize)
	assert.Equal(t, int64(8<<20), cfg.IOChunk)
	assert.Equal(t, int64(8<<20), cfg.DownloadChunk)
	assert.Equal(t, DefaultDownloadCycles, cfg.DownloadCycles)
	assert.Equal(t, 1, cfg.FilesPerSize)
	assert.Equal(t, 1, cfg.ParallelParts)
	assert.Equal(t, DefaultProgressInterval, cfg.ProgressInterval)
	assert.Equal(t, 0.0, cfg.UploadRate())
	assert.NoError(t, cfg.Validate())
}

func TestValidateStorageIgnoresRunSettings(t *testing.T) {
	cfg := &Config{Provider: "s3", Bucket: "bench"}
	assert.NoError(t, cfg.ValidateStorage())
	assert.Error(t, cfg.Validate())
}
