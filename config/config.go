package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. S3BENCH_BUCKET.
const EnvPrefix = "S3BENCH"

// Defaults mirror the s3_load_test script.
const (
	DefaultPrefix           = "loadtest/"
	DefaultSizes            = "1GiB,10GiB,100GiB"
	DefaultPartSize         = "64MiB"
	DefaultIOChunk          = "8MiB"
	DefaultDownloadChunk    = "8MiB"
	DefaultDownloadCycles   = 3
	DefaultProgressInterval = 2 * time.Second
)

// S3-compatible multipart limits.
const (
	MinPartSize = 5 * 1024 * 1024
	MaxParts    = 10000
)

// Config is the fully resolved benchmark configuration.
type Config struct {
	Provider string
	Bucket   string
	Prefix   string

	Sizes            []int64
	FilesPerSize     int
	PartSize         int64
	UploadMbps       float64
	DownloadMbps     float64
	ParallelParts    int
	IOChunk          int64
	DownloadChunk    int64
	DownloadCycles   int
	ProgressInterval time.Duration
	ProgressBar      bool

	LogFile     string
	LogLevel    string
	MetricsAddr string

	// S3 / MinIO
	Endpoint        string
	Region          string
	AddressingStyle string
	AccessKey       string
	SecretKey       string
	SessionToken    string
	Profile         string
	Secure          bool

	// OCI
	OCIConfigFile string
	OCIProfile    string
	Namespace     string
	Host          string
}

// BindEnv registers the environment variables understood besides the
// S3BENCH_* ones, so .env files written for s3_load_test keep working.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("endpoint", EnvPrefix+"_ENDPOINT", "S3_ENDPOINT_URL")
	_ = v.BindEnv("region", EnvPrefix+"_REGION", "AWS_DEFAULT_REGION", "AWS_REGION")
	_ = v.BindEnv("addressing_style", EnvPrefix+"_ADDRESSING_STYLE", "S3_ADDRESSING_STYLE")
	_ = v.BindEnv("access_key", EnvPrefix+"_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("secret_key", EnvPrefix+"_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("session_token", EnvPrefix+"_SESSION_TOKEN", "AWS_SESSION_TOKEN")
	_ = v.BindEnv("profile", EnvPrefix+"_PROFILE", "AWS_PROFILE")
}

// SetDefaults registers the default of every key that has one, so Load works
// for commands that do not define the corresponding flags.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "s3")
	v.SetDefault("prefix", DefaultPrefix)
	v.SetDefault("sizes", DefaultSizes)
	v.SetDefault("files_per_size", 1)
	v.SetDefault("part_size", DefaultPartSize)
	v.SetDefault("parallel_parts", 1)
	v.SetDefault("io_chunk", DefaultIOChunk)
	v.SetDefault("download_chunk", DefaultDownloadChunk)
	v.SetDefault("download_cycles", DefaultDownloadCycles)
	v.SetDefault("progress_interval", DefaultProgressInterval)
	v.SetDefault("log_level", "info")
	v.SetDefault("addressing_style", "auto")
	v.SetDefault("oci_config_file", DefaultOCIConfigFile)
	v.SetDefault("oci_profile", "DEFAULT")
}

// Load reads every recognized key from v.
func Load(v *viper.Viper) (*Config, error) {
	sizes, err := ParseSizes(v.GetString("sizes"))
	if err != nil {
		return nil, err
	}
	partSize, err := parseBytes("part_size", v.GetString("part_size"))
	if err != nil {
		return nil, err
	}
	ioChunk, err := parseBytes("io_chunk", v.GetString("io_chunk"))
	if err != nil {
		return nil, err
	}
	downloadChunk, err := parseBytes("download_chunk", v.GetString("download_chunk"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Provider:         strings.ToLower(v.GetString("provider")),
		Bucket:           v.GetString("bucket"),
		Prefix:           v.GetString("prefix"),
		Sizes:            sizes,
		FilesPerSize:     v.GetInt("files_per_size"),
		PartSize:         partSize,
		UploadMbps:       v.GetFloat64("upload_mbps"),
		DownloadMbps:     v.GetFloat64("download_mbps"),
		ParallelParts:    v.GetInt("parallel_parts"),
		IOChunk:          ioChunk,
		DownloadChunk:    downloadChunk,
		DownloadCycles:   v.GetInt("download_cycles"),
		ProgressInterval: v.GetDuration("progress_interval"),
		ProgressBar:      v.GetBool("progress_bar"),
		LogFile:          v.GetString("log_file"),
		LogLevel:         v.GetString("log_level"),
		MetricsAddr:      v.GetString("metrics_addr"),
		Endpoint:         v.GetString("endpoint"),
		Region:           v.GetString("region"),
		AddressingStyle:  v.GetString("addressing_style"),
		AccessKey:        v.GetString("access_key"),
		SecretKey:        v.GetString("secret_key"),
		SessionToken:     v.GetString("session_token"),
		Profile:          v.GetString("profile"),
		Secure:           v.GetBool("secure"),
		OCIConfigFile:    v.GetString("oci_config_file"),
		OCIProfile:       v.GetString("oci_profile"),
		Namespace:        v.GetString("namespace"),
		Host:             v.GetString("host"),
	}
	return cfg, nil
}

// Validate rejects configurations that could never run, before any network
// call is made.
func (c *Config) Validate() error {
	return errors.Join(c.ValidateStorage(), c.validateRun())
}

// ValidateStorage checks only what is needed to reach the bucket.
func (c *Config) ValidateStorage() error {
	var errs []error
	switch c.Provider {
	case "s3", "oci", "minio":
	default:
		errs = append(errs, fmt.Errorf("provider must be one of s3, oci, minio (got %q)", c.Provider))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket required"))
	}
	switch strings.ToLower(c.AddressingStyle) {
	case "", "auto", "path", "virtual":
	default:
		errs = append(errs, fmt.Errorf("addressing_style must be path, virtual or auto (got %q)", c.AddressingStyle))
	}
	if c.Provider == "minio" && c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint required for minio provider"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateRun() error {
	var errs []error
	if len(c.Sizes) == 0 {
		errs = append(errs, errors.New("at least one object size required"))
	}
	for _, size := range c.Sizes {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("object size must be positive (got %d)", size))
		}
	}
	if c.FilesPerSize < 1 {
		errs = append(errs, fmt.Errorf("files_per_size must be >= 1 (got %d)", c.FilesPerSize))
	}
	if c.PartSize <= 0 {
		errs = append(errs, fmt.Errorf("part_size must be positive (got %d)", c.PartSize))
	} else {
		for _, size := range c.Sizes {
			if c.PartSize < MinPartSize && size > c.PartSize {
				errs = append(errs, fmt.Errorf("part_size %s below minimum %s for a %s object",
					humanize.IBytes(uint64(c.PartSize)), humanize.IBytes(MinPartSize), humanize.IBytes(uint64(size))))
				break
			}
			if parts := (size + c.PartSize - 1) / c.PartSize; parts > MaxParts {
				errs = append(errs, fmt.Errorf("a %s object needs %d parts, more than %d; raise part_size",
					humanize.IBytes(uint64(size)), parts, MaxParts))
				break
			}
		}
	}
	if c.ParallelParts < 1 {
		errs = append(errs, fmt.Errorf("parallel_parts must be >= 1 (got %d)", c.ParallelParts))
	}
	if c.IOChunk <= 0 {
		errs = append(errs, fmt.Errorf("io_chunk must be positive (got %d)", c.IOChunk))
	}
	if c.DownloadChunk <= 0 {
		errs = append(errs, fmt.Errorf("download_chunk must be positive (got %d)", c.DownloadChunk))
	}
	if c.DownloadCycles < 0 {
		errs = append(errs, fmt.Errorf("download_cycles must be >= 0 (got %d)", c.DownloadCycles))
	}
	if c.UploadMbps < 0 || c.DownloadMbps < 0 {
		errs = append(errs, errors.New("rate limits must be >= 0 (0 = unlimited)"))
	}
	if c.ProgressInterval <= 0 {
		errs = append(errs, fmt.Errorf("progress_interval must be positive (got %s)", c.ProgressInterval))
	}
	return errors.Join(errs...)
}

// UploadRate is the upload ceiling in bytes per second, 0 when unlimited.
func (c *Config) UploadRate() float64 { return MbpsToBytesPerSec(c.UploadMbps) }

// DownloadRate is the download ceiling in bytes per second, 0 when unlimited.
func (c *Config) DownloadRate() float64 { return MbpsToBytesPerSec(c.DownloadMbps) }

// MbpsToBytesPerSec converts megabits per second (binary mega) to bytes per
// second. Non-positive input means unlimited and yields 0.
func MbpsToBytesPerSec(mbps float64) float64 {
	if mbps <= 0 {
		return 0
	}
	return mbps * 1024 * 1024 / 8
}

// ParseSizes parses a comma separated size list. Items are humanized byte
// quantities ("512MiB", "1GB"); a bare number is taken as GiB, like the old
// --sizes-gb flag.
func ParseSizes(list string) ([]int64, error) {
	var sizes []int64
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if n, err := strconv.ParseFloat(item, 64); err == nil {
			sizes = append(sizes, int64(n*humanize.GiByte))
			continue
		}
		size, err := parseBytes("sizes", item)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

func parseBytes(key, value string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return int64(n), nil
}
