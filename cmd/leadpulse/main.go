package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/outreachlab/leadpulse/internal/actions"
	"github.com/outreachlab/leadpulse/internal/feed"
	"github.com/outreachlab/leadpulse/internal/genai"
	"github.com/outreachlab/leadpulse/internal/lockfile"
	"github.com/outreachlab/leadpulse/internal/metrics"
	"github.com/outreachlab/leadpulse/internal/notify"
	"github.com/outreachlab/leadpulse/internal/rules"
	"github.com/outreachlab/leadpulse/internal/schedule"
	"github.com/outreachlab/leadpulse/internal/scheduler"
	"github.com/outreachlab/leadpulse/internal/sentiment"
	"github.com/outreachlab/leadpulse/internal/store"
	"github.com/outreachlab/leadpulse/internal/sweep"
	"github.com/outreachlab/leadpulse/internal/transcript"
	"github.com/outreachlab/leadpulse/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadPulse state data
	DefaultStateDir = "/var/lib/leadpulse"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadpulse.db"
	// DefaultSweepCron runs the batch sweep hourly
	DefaultSweepCron = "0 * * * *"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One daemon per state directory
	lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping LeadPulse with configured modules")
	slog.Debug("Final configuration", "dsn_set", *flags.dbDSN != "", "metrics_addr", *flags.metricsAddr,
		"sweep_cron", *flags.sweepCron, "sweep_workers", *flags.sweepWorkers)
	if err := run(flags); err != nil {
		slog.Error("LeadPulse failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadPulse exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	OpenAIModel  string
	MetricsAddr  string
	SweepCron    string
	SweepWorkers int
	AMQPURL      string
	TwilioSID    string
}

// Flags holds command line flag values
type Flags struct {
	dbDSN        *string
	openaiKey    *string
	openaiModel  *string
	metricsAddr  *string
	sweepCron    *string
	sweepWorkers *int
	amqpURL      *string
	twilioSID    *string
}

// initializeLogger sets up structured logging; LEADPULSE_DEBUG enables debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LEADPULSE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("LEADPULSE_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
		SweepCron:    os.Getenv("DEFAULT_SWEEP_SCHEDULE"),
		SweepWorkers: util.ParseIntEnv("SWEEP_CONCURRENCY", sweep.DefaultSweepConcurrency),
		AMQPURL:      os.Getenv("AMQP_URL"),
		TwilioSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADPULSE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.SweepCron == "" {
		config.SweepCron = DefaultSweepCron
	}

	// Without a database URL, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEADPULSE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"METRICS_ADDR", config.MetricsAddr,
		"DEFAULT_SWEEP_SCHEDULE", config.SweepCron,
		"SWEEP_CONCURRENCY", config.SweepWorkers,
		"AMQP_URL_SET", config.AMQPURL != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:  flag.String("openai-model", config.OpenAIModel, "OpenAI model for sentiment scoring (overrides $OPENAI_MODEL)"),
		metricsAddr:  flag.String("metrics-addr", config.MetricsAddr, "Prometheus metrics listen address (overrides $METRICS_ADDR)"),
		sweepCron:    flag.String("sweep-cron", config.SweepCron, "cron schedule for the batch sweep (overrides $DEFAULT_SWEEP_SCHEDULE)"),
		sweepWorkers: flag.Int("sweep-workers", config.SweepWorkers, "leads evaluated in parallel during a sweep (overrides $SWEEP_CONCURRENCY)"),
		amqpURL:      flag.String("amqp-url", config.AMQPURL, "AMQP broker URL for the activity feed (overrides $AMQP_URL)"),
		twilioSID:    flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID for SMS notifications (overrides $TWILIO_ACCOUNT_SID)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"metricsAddr", *flags.metricsAddr,
		"sweepCron", *flags.sweepCron,
		"sweepWorkers", *flags.sweepWorkers,
		"amqpURL_set", *flags.amqpURL != "",
		"twilioSID_set", *flags.twilioSID != "")

	return flags
}

// ensureDirectoriesExist creates the state directory for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	analyzer, err := buildAnalyzer(flags)
	if err != nil {
		return err
	}

	dispatcher := buildDispatcher(flags)
	executor, feedCloser := buildExecutor(flags, st, dispatcher)
	if feedCloser != nil {
		defer feedCloser()
	}
	engine := buildEngine(st, executor)
	runner := sweep.NewRunner(analyzer, st, engine, sweep.WithSweepConcurrency(*flags.sweepWorkers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.sweepCron, func() {
		if err := runner.RunSweep(ctx); err != nil {
			slog.Error("Scheduled sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Info("Batch sweep scheduled", "cron", *flags.sweepCron, "jobs", sched.Jobs())

	if *flags.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(*flags.metricsAddr); err != nil {
				slog.Error("Metrics listener failed", "error", err)
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	slog.Info("Shutdown signal received", "signal", sig.String())
	cancel()
	return nil
}

// openStore selects the storage backend from the DSN
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildAnalyzer constructs the transcript analysis pipeline
func buildAnalyzer(flags Flags) (*sentiment.Analyzer, error) {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	scorer, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return nil, err
	}

	segmenter, err := transcript.NewSegmenter(
		transcript.WithSegmentDuration(util.ParseFloatEnv("SEGMENT_DURATION_SECONDS", transcript.DefaultSegmentDurationSeconds)),
		transcript.WithOverlap(util.ParseFloatEnv("SEGMENT_OVERLAP_SECONDS", transcript.DefaultOverlapSeconds)),
	)
	if err != nil {
		return nil, err
	}

	segmentScorer := sentiment.NewSegmentScorer(scorer,
		sentiment.WithScoreTimeout(util.ParseDurationEnv("SCORE_TIMEOUT", sentiment.DefaultScoreTimeout)))
	return sentiment.NewAnalyzer(segmenter, segmentScorer, sentiment.NewAggregator()), nil
}

// buildDispatcher registers notification senders; Twilio only when configured
func buildDispatcher(flags Flags) *notify.Dispatcher {
	dispatcher := notify.NewDispatcher()
	dispatcher.Register("log", notify.LogSender{})

	if *flags.twilioSID != "" {
		sender, err := notify.NewTwilioSender(notify.WithAccountSID(*flags.twilioSID))
		if err != nil {
			slog.Warn("Twilio sender unavailable, SMS channel disabled", "error", err)
		} else {
			dispatcher.Register("sms", sender)
		}
	}
	return dispatcher
}

// buildExecutor constructs the action executor, attaching the AMQP activity
// feed when a broker is configured. The returned closer is nil without a feed.
func buildExecutor(flags Flags, st store.Store, dispatcher *notify.Dispatcher) (*actions.Executor, func() error) {
	var execOpts []actions.ExecutorOption
	var closer func() error
	if *flags.amqpURL != "" {
		publisher, err := feed.NewAMQPPublisher(feed.WithURL(*flags.amqpURL))
		if err != nil {
			slog.Warn("Activity feed unavailable, audit records stay local", "error", err)
		} else {
			execOpts = append(execOpts, actions.WithAuditPublisher(publisher))
			closer = publisher.Close
		}
	}
	return actions.NewExecutor(st, schedule.NewLogScheduler(), dispatcher, execOpts...), closer
}

// buildEngine constructs the rule engine with environment-tuned thresholds
func buildEngine(st store.Store, executor *actions.Executor) *rules.Engine {
	repo := rules.NewStoreRepository(st)
	return rules.NewEngine(repo, st, executor,
		rules.WithFiringThreshold(util.ParseFloatEnv("FIRING_THRESHOLD", rules.DefaultFiringThreshold)),
		rules.WithCooldown(util.ParseDurationEnv("RULE_COOLDOWN", rules.DefaultCooldown)))
}
