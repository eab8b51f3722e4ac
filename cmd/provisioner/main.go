// cmd/provisioner/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clinic-provisioner/internal/audit"
	"clinic-provisioner/internal/common/aws"
	"clinic-provisioner/internal/common/config"
	"clinic-provisioner/internal/common/database"
	"clinic-provisioner/internal/common/logger"
	"clinic-provisioner/internal/common/observability"
	"clinic-provisioner/internal/fly"
	"clinic-provisioner/internal/openai"
	"clinic-provisioner/internal/provision"
	"clinic-provisioner/internal/supabase"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting clinic provisioner...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init audit trail ---
	var recorder audit.Recorder = audit.NoopRecorder{}
	if cfg.Audit.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		recorder = audit.NewESRecorder(esClient, cfg.Audit.Index, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init alerting ---
	var alerter provision.Alerter
	if cfg.Alerts.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Alerts.SNS.Region, cfg.Alerts.SNS.TopicARN)
		if err != nil {
			zapLog.Fatal("sns client initialization failed", zap.Error(err))
		}
		alerter = snsClient
		zapLog.Info("SNS alerting enabled", zap.String("topicArn", cfg.Alerts.SNS.TopicARN))
	}

	// --- Init external service clients ---
	store := supabase.NewClient(
		cfg.Supabase.URL,
		cfg.Supabase.ServiceKey,
		cfg.Supabase.Table,
		config.GetDuration(cfg.Supabase.Timeout),
	)

	embedder := openai.NewClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.Dimensions,
		config.GetDuration(cfg.OpenAI.Timeout),
	)

	launcher := fly.NewClient(
		cfg.Fly.APIToken,
		cfg.Fly.App,
		cfg.Fly.BaseURL,
		config.GetDuration(cfg.Fly.Timeout),
	)

	zapLog.Info("All external service clients initialized")

	provCfg := provision.DefaultConfig()
	provCfg.Timeout = config.GetDuration(cfg.Provision.Timeout)
	provCfg.LockTTL = config.GetDuration(cfg.Provision.LockTTL)
	provCfg.Image = cfg.Fly.Image
	provCfg.Region = cfg.Fly.Region
	provCfg.AgentCmd = cfg.Agent.Cmd
	provCfg.CompensateOnLaunchFailure = cfg.Provision.CompensateOnLaunchFailure
	provCfg.BaseEnv = agentEnv(cfg)
	if err := provCfg.Validate(); err != nil {
		zapLog.Fatal("invalid provisioning config", zap.Error(err))
	}

	service := provision.NewService(provision.ServiceDependencies{
		Logger:   log,
		Store:    store,
		Embedder: embedder,
		Launcher: launcher,
		Locker:   provision.NewTenantLocker(redisClient.GetClient(), provCfg.LockTTL),
		Alerter:  alerter,
		Recorder: recorder,
	}, provCfg)

	handler := provision.NewHandler(provision.HandlerOptions{
		Service:       service,
		Logger:        log,
		Observability: obs,
		Timeout:       provCfg.Timeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/provision", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "READY")
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: provCfg.Timeout + 10*time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// pprof on a side port, never exposed with the API
	go func() {
		zapLog.Info("pprof listening on :6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof server stopped", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), provCfg.Timeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http server shutdown failed", zap.Error(err))
	}
	zapLog.Info("Shutdown complete")
}

// agentEnv builds the static env block every launched agent receives. The
// store URL and key go in so the agent can read its own profile; LiveKit and
// Twilio credentials wire up the voice path.
func agentEnv(cfg *config.Config) map[string]string {
	return map[string]string{
		"SUPABASE_URL":         cfg.Supabase.URL,
		"SUPABASE_SERVICE_KEY": cfg.Supabase.ServiceKey,
		"OPENAI_KEY":           cfg.OpenAI.APIKey,
		"LIVEKIT_URL":          cfg.Agent.LiveKit.URL,
		"LIVEKIT_API_KEY":      cfg.Agent.LiveKit.APIKey,
		"LIVEKIT_API_SECRET":   cfg.Agent.LiveKit.APISecret,
		"TWILIO_ACCOUNT_SID":   cfg.Agent.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":    cfg.Agent.Twilio.AuthToken,
	}
}
