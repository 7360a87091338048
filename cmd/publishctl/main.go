package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"video-publish-scheduler/internal/config"
	"video-publish-scheduler/internal/logging"
	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/payload"
	"video-publish-scheduler/internal/platform/youtube"
	"video-publish-scheduler/internal/quota"
	"video-publish-scheduler/internal/schedule"
	"video-publish-scheduler/internal/store"
)

var (
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "publishctl",
	Short: "Batch video publisher with windowed slot scheduling",
	Long: "publishctl uploads generated videos to the publishing platform and\n" +
		"assigns publish times inside a per-channel daily window, without\n" +
		"colliding with slots already claimed on the platform.",
	PersistentPreRun: func(*cobra.Command, []string) {
		cfg = config.Load()
		logger = logging.Setup(cfg.Env)
	},
}

func main() {
	rootCmd.AddCommand(importCmd, uploadCmd, scheduleCmd, statusCmd, daemonCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := st.RunMigrations(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return st, nil
}

func newPublisher() (*youtube.Client, error) {
	var tokens youtube.TokenSource
	switch {
	case cfg.PlatformTokenFile != "":
		tokens = youtube.FileToken(cfg.PlatformTokenFile)
	case cfg.PlatformToken != "":
		tokens = youtube.StaticToken(cfg.PlatformToken)
	default:
		return nil, errors.New("set PLATFORM_TOKEN or PLATFORM_TOKEN_FILE")
	}
	return youtube.New(youtube.Options{
		BaseURL:       cfg.PlatformBaseURL,
		UploadBaseURL: cfg.PlatformUploadURL,
		HTTPClient:    &http.Client{Timeout: cfg.RequestTimeout},
		UploadClient:  &http.Client{Timeout: cfg.UploadTimeout},
		Tokens:        tokens,
	}), nil
}

func newSource(ctx context.Context) (payload.Source, error) {
	router := &payload.Router{
		Local: &payload.LocalSource{BaseDir: cfg.PayloadDir, MaxBytes: cfg.PayloadMaxBytes},
	}
	if cfg.S3Bucket != "" {
		client, err := payload.NewS3Client(ctx, payload.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		router.S3 = &payload.S3Source{Client: client, Bucket: cfg.S3Bucket, MaxBytes: cfg.PayloadMaxBytes}
	}
	return router, nil
}

func newLedger(channel string) *quota.Ledger {
	if cfg.RedisAddr == "" || cfg.DailyQuotaUploads <= 0 {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return quota.NewLedger(client, channel, cfg.DailyQuotaUploads)
}

func loadChannel(name string) (*config.ChannelConfig, error) {
	if name == "" {
		return nil, errors.New("--channel is required")
	}
	return config.LoadChannel(cfg.ChannelConfigDir, name)
}

func windowFor(cc *config.ChannelConfig) schedule.Window {
	horizon := cc.Schedule.HorizonDays
	if horizon == 0 {
		horizon = cfg.HorizonDays
	}
	return schedule.Window{
		Location:      cc.Location(),
		StartHour:     cc.Schedule.StartHour,
		EndHour:       cc.Schedule.EndHour,
		IntervalHours: cc.Schedule.IntervalHours,
		HorizonDays:   horizon,
		Buffer:        cfg.SlotBuffer,
	}
}

func printReport(report *models.RunReport) {
	for _, res := range report.Results {
		line := fmt.Sprintf("%-9s %s", res.Outcome, res.ItemID)
		if res.ExternalID != "" {
			line += "  id=" + res.ExternalID
		}
		if res.PublishAt != nil {
			line += "  publish_at=" + res.PublishAt.UTC().Format("2006-01-02T15:04Z")
		}
		if res.Reason != "" {
			line += "  (" + res.Reason + ")"
		}
		fmt.Println(line)
	}
	fmt.Println(report.Summary())
}
