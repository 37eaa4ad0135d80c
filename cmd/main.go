package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/benchmark"
	"github.com/quickshadows/scripts/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "s3bench",
		Short: "Rate-limited multipart upload and streaming download benchmark for object storage",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "Config file (yaml, json or toml)")
	flags.String("env-file", ".env", "Dotenv file loaded before reading the environment")
	flags.StringP("provider", "p", "s3", "Storage provider: s3, oci, minio")
	flags.StringP("bucket", "b", "", "Target bucket")
	flags.String("prefix", config.DefaultPrefix, "Key prefix in bucket")
	flags.String("log-file", "", "Log file path (run defaults to s3_load_test_<tag>.log)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("endpoint", "", "S3 or MinIO endpoint URL (env S3_ENDPOINT_URL)")
	flags.String("region", "", "Region (env AWS_DEFAULT_REGION)")
	flags.String("addressing-style", "auto", "S3 addressing style: path, virtual, auto (env S3_ADDRESSING_STYLE)")
	flags.String("access-key", "", "Access key (env AWS_ACCESS_KEY_ID)")
	flags.String("secret-key", "", "Secret key (env AWS_SECRET_ACCESS_KEY)")
	flags.String("session-token", "", "Session token (env AWS_SESSION_TOKEN)")
	flags.String("profile", "", "AWS shared config profile (env AWS_PROFILE)")
	flags.Bool("secure", true, "Use TLS when the MinIO endpoint has no scheme")
	flags.String("oci-config-file", config.DefaultOCIConfigFile, "Path to OCI config file")
	flags.String("oci-profile", "DEFAULT", "OCI config profile")
	flags.String("namespace", "", "OCI namespace (looked up when empty)")
	flags.String("host", "", "OCI object storage host override")

	rootCmd.AddCommand(newRunCmd(a), newCleanupCmd(a), newPurgeCmd(a))
	return rootCmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// load resolves configuration (flags over env over .env over config file
// over defaults) and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	dotenvUsed, err := config.LoadDotEnv(envFile)
	if err != nil {
		return err
	}

	config.SetDefaults(a.v)
	config.BindEnv(a.v)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = a.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("config read '%s': %w", path, err)
			}
		}
	}

	a.cfg, err = config.Load(a.v)
	if err != nil {
		return err
	}
	if a.cfg.LogFile == "" && cmd.Name() == "run" {
		a.cfg.LogFile = fmt.Sprintf("s3_load_test_%s.log", benchmark.NowTag(time.Now()))
	}

	a.logger, a.closeLog, err = setupLogging(cmd.OutOrStdout(), a.cfg.LogFile, a.cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger)

	if dotenvUsed != "" {
		a.logger.Info("Using dotenv file", "path", dotenvUsed)
	}
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("Using config file", "path", used)
	}
	return nil
}

// storageConfig selects the provider settings out of the full configuration.
func storageConfig(cfg *config.Config) backend.Config {
	return backend.Config{
		Provider:        cfg.Provider,
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AddressingStyle: cfg.AddressingStyle,
		AccessKey:       cfg.AccessKey,
		SecretKey:       cfg.SecretKey,
		SessionToken:    cfg.SessionToken,
		Profile:         cfg.Profile,
		Secure:          cfg.Secure,
		OCIConfigFile:   cfg.OCIConfigFile,
		OCIProfile:      cfg.OCIProfile,
		Namespace:       cfg.Namespace,
		Host:            cfg.Host,
	}
}
