package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hunselvm/genai/internal/config"
	"github.com/Hunselvm/genai/internal/genclient"
	"github.com/Hunselvm/genai/internal/jobstore"
	"github.com/Hunselvm/genai/internal/ratelimit"
)

type app struct {
	cfg    config.Config
	logger *zap.SugaredLogger
}

// New builds the root command tree.
func New(cfg config.Config, logger *zap.SugaredLogger) *cobra.Command {
	a := &app{cfg: cfg, logger: logger}

	root := &cobra.Command{
		Use:           "genai",
		Short:         "Batch driver for the remote image and video generation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		a.batchCmd(),
		a.jobsCmd(),
		a.exportCmd(),
		a.quotaCmd(),
	)
	return root
}

// store opens the configured job backend. The returned closer is a no-op
// for the file backend.
func (a *app) store(ctx context.Context) (jobstore.Store, func(), error) {
	switch a.cfg.Jobs.Backend {
	case "postgres":
		s, err := jobstore.NewPostgresStore(ctx, a.cfg.Jobs.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres job store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "memory":
		return jobstore.NewMemoryStore(), func() {}, nil
	case "file", "":
		s, err := jobstore.NewFileStore(a.cfg.Jobs.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file job store: %w", err)
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown jobs backend %q", a.cfg.Jobs.Backend)
	}
}

func (a *app) client() (*genclient.Client, error) {
	return genclient.New(genclient.Config{
		APIKey:  a.cfg.API.Key,
		BaseURL: a.cfg.API.BaseURL,
		Timeout: a.cfg.API.Timeout,
	}, a.logger)
}

// limiter picks the in-process sliding window unless Redis is configured,
// in which case the budget is shared with every other runner pointed at the
// same server.
func (a *app) limiter(requestsPerMinute int, subject string) (ratelimit.Limiter, error) {
	if a.cfg.RateLimit.RedisAddr == "" {
		return ratelimit.NewSlidingWindow(requestsPerMinute), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RateLimit.RedisAddr,
		Password: a.cfg.RateLimit.RedisPassword,
		DB:       a.cfg.RateLimit.RedisDB,
	})
	return ratelimit.NewSharedBucket(client, requestsPerMinute, subject)
}
