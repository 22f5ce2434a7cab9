package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"auctionhall/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("log-format", "text", "text or json")
	pflag.String("log-level", "info", "debug, info, warn or error")

	// auth config
	pflag.String("auth-public-key-file", "", "Ed25519 public key (PEM) used to verify access tokens")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-region", "auto", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Bool("s3-use-path-style", false, "")
	pflag.Int64("s3-rate-limit-per-hour", 20, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")
	pflag.Bool("db-auto-migrate", false, "")

	// redis config
	pflag.String("redis-addr", "", "leave empty to run in single node mode")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "auctionhall:", "")
	pflag.Duration("redis-snapshot-ttl", 24*time.Hour, "")

	// redis stream keys
	pflag.String("redis-stream-key-for-events", "auctionhall-events-stream", "")

	// lock config
	pflag.Duration("lock-wait", 5*time.Second, "")
	pflag.Duration("lock-expiry", 8*time.Second, "")
	pflag.Duration("lock-retry-delay", 50*time.Millisecond, "")

	// lifecycle config
	pflag.Duration("lifecycle-sweep-interval", 30*time.Second, "0 disables the sweeper")
	pflag.Int("lifecycle-sweep-batch-size", 100, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUCTION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		LogFormat: viper.GetString("log-format"),
		LogLevel:  viper.GetString("log-level"),
		ServerConfig: api.ServerConfig{
			Auth: api.AuthConfig{
				PublicKeyFile: viper.GetString("auth-public-key-file"),
			},
			S3: api.S3Config{
				Endpoint:         viper.GetString("s3-endpoint"),
				Region:           viper.GetString("s3-region"),
				Bucket:           viper.GetString("s3-bucket"),
				PublicBaseURL:    viper.GetString("s3-public-base-url"),
				AccessKeyID:      viper.GetString("s3-access-key-id"),
				SecretAccessKey:  viper.GetString("s3-secret-access-key"),
				UsePathStyle:     viper.GetBool("s3-use-path-style"),
				RateLimitPerHour: viper.GetInt64("s3-rate-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:        viper.GetString("db-user"),
				Password:    viper.GetString("db-password"),
				Host:        viper.GetString("db-host"),
				Port:        viper.GetInt("db-port"),
				Database:    viper.GetString("db-database"),
				Schema:      viper.GetString("db-schema"),
				AutoMigrate: viper.GetBool("db-auto-migrate"),
			},
			Redis: api.RedisConfig{
				Addr:        viper.GetString("redis-addr"),
				Password:    viper.GetString("redis-password"),
				DB:          viper.GetInt("redis-db"),
				KeyPrefix:   viper.GetString("redis-key-prefix"),
				SnapshotTTL: viper.GetDuration("redis-snapshot-ttl"),
				StreamKeys: api.RedisStreamKeys{
					Events: viper.GetString("redis-stream-key-for-events"),
				},
			},
			Lock: api.LockConfig{
				Wait:       viper.GetDuration("lock-wait"),
				Expiry:     viper.GetDuration("lock-expiry"),
				RetryDelay: viper.GetDuration("lock-retry-delay"),
			},
			Lifecycle: api.LifecycleConfig{
				SweepInterval:  viper.GetDuration("lifecycle-sweep-interval"),
				SweepBatchSize: viper.GetInt("lifecycle-sweep-batch-size"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	LogFormat    string
	LogLevel     string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.Auth.PublicKeyFile != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.DB.Database != ""
}

// Level 將文字轉為 slog.Level，無法辨識時使用 Info
func (args Args) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
