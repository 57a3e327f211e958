// Command ptcoach runs the PT form-coaching fan-out server, or trains a
// reference model from a captured exercise repetition.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ptcoach/ptcoach/internal/config"
	"github.com/ptcoach/ptcoach/internal/logging"
	"github.com/ptcoach/ptcoach/pkg/coach"
	"github.com/ptcoach/ptcoach/pkg/landmark"
	"github.com/ptcoach/ptcoach/pkg/model"
	"github.com/ptcoach/ptcoach/pkg/sink"
	"github.com/ptcoach/ptcoach/pkg/streamserver"
	"github.com/ptcoach/ptcoach/pkg/trainer"
)

var version = "0.1.0"

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "train":
		err = runTrain(args)
	case "version":
		fmt.Printf("ptcoach version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "ptcoach: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ptcoach %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "ptcoach - real-time PT form-coaching engine\n\n")
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     run the fan-out coaching server\n")
	fmt.Fprintf(os.Stderr, "  train     train a reference model from a capture file\n")
	fmt.Fprintf(os.Stderr, "  version   print the version and exit\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  %s serve -config config.toml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s serve -exercise squat -policy tolerance -port 8080\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s train -exercise squat -data-dir data -models-dir models\n", os.Args[0])
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to TOML configuration file")
	exercise := fs.String("exercise", "", "Exercise to coach (overrides config)")
	policyFlag := fs.String("policy", "", "Coaching policy: simple or tolerance (overrides config)")
	host := fs.String("host", "", "Bind address (overrides config)")
	port := fs.Int("port", 0, "Listen port (overrides config)")
	modelsDir := fs.String("models-dir", "", "Trained models directory (overrides config)")
	dataDir := fs.String("data-dir", "", "Reference capture directory, used to auto-train a missing model (overrides config)")
	verbose := fs.Bool("verbose", false, "Enable verbose console logging (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *exercise != "" {
		cfg.Coach.Exercise = *exercise
	}
	if *policyFlag != "" {
		cfg.Coach.Policy = *policyFlag
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *modelsDir != "" {
		cfg.Coach.ModelsDir = *modelsDir
	}
	if *dataDir != "" {
		cfg.Coach.DataDir = *dataDir
	}
	if *verbose {
		cfg.Logging.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.Must(cfg.Logging.Level, cfg.Logging.Verbose)
	defer log.Sync()

	key, err := landmark.CanonicalExerciseKey(cfg.Coach.Exercise)
	if err != nil {
		return err
	}
	spec := landmark.Registry[key]

	available, err := trainer.EnsureModels(cfg.Coach.DataDir, cfg.Coach.ModelsDir, log)
	if err != nil {
		return fmt.Errorf("ensuring models: %w", err)
	}
	base, ok := available[key]
	if !ok {
		base = filepath.Join(cfg.Coach.ModelsDir, string(key)+"_reference_model")
	}
	artifact, err := model.Load(base)
	if err != nil {
		return fmt.Errorf("loading model for %s (train one first with 'ptcoach train -exercise %s'): %w", key, key, err)
	}

	policy := coach.PolicySimple
	if cfg.Coach.Policy == "tolerance" {
		policy = coach.PolicyTolerance
	}
	engine := coach.New(artifact, policy, log)

	var sessionSink sink.Sink = sink.NopSink{}
	if cfg.Sink.Enabled {
		fileSink, err := sink.NewFileSink(cfg.Sink.Path)
		if err != nil {
			return fmt.Errorf("opening session sink: %w", err)
		}
		sessionSink = fileSink
	}

	serverCfg := streamserver.Config{
		IngestMaxFPS:       cfg.Ingest.MaxFPS,
		QueueMode:          queueModeFromString(cfg.Ingest.QueueMode),
		ReconnectDelay:     time.Duration(cfg.Ingest.ReconnectDelaySec) * time.Second,
		SubscriberBuffer:   cfg.Ingest.SubscriberBuffer,
		HealthLogInterval:  time.Duration(cfg.Ingest.HealthLogIntervalSec) * time.Second,
		Sink:               sessionSink,
		SinkSampleInterval: time.Duration(cfg.Sink.SampleIntervalSec) * time.Second,
	}
	srv := streamserver.NewServer(engine, serverCfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/"+string(key), srv.ServeIngest)
	mux.HandleFunc("/subscribe", srv.ServeSubscribe)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	log.Info("ptcoach serving",
		zap.String("exercise", string(key)),
		zap.String("display_name", spec.DisplayName),
		zap.String("policy", cfg.Coach.Policy),
		zap.String("addr", addr),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to TOML configuration file")
	exercise := fs.String("exercise", "", "Exercise to train (overrides config)")
	dataDir := fs.String("data-dir", "", "Reference capture directory (overrides config)")
	modelsDir := fs.String("models-dir", "", "Output models directory (overrides config)")
	verbose := fs.Bool("verbose", false, "Enable verbose console logging (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *exercise != "" {
		cfg.Coach.Exercise = *exercise
	}
	if *dataDir != "" {
		cfg.Coach.DataDir = *dataDir
	}
	if *modelsDir != "" {
		cfg.Coach.ModelsDir = *modelsDir
	}
	if *verbose {
		cfg.Logging.Verbose = true
	}

	log := logging.Must(cfg.Logging.Level, cfg.Logging.Verbose)
	defer log.Sync()

	key, err := landmark.CanonicalExerciseKey(cfg.Coach.Exercise)
	if err != nil {
		return err
	}
	spec := landmark.Registry[key]

	capturePath := filepath.Join(cfg.Coach.DataDir, string(key)+"_reference.json")
	frames, err := trainer.LoadCapture(capturePath)
	if err != nil {
		return fmt.Errorf("loading capture %s: %w", capturePath, err)
	}

	artifact, err := trainer.Train(frames, spec)
	if err != nil {
		return fmt.Errorf("training %s: %w", key, err)
	}

	if err := os.MkdirAll(cfg.Coach.ModelsDir, 0o755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}
	base := filepath.Join(cfg.Coach.ModelsDir, string(key)+"_reference_model")
	if err := model.Save(base, artifact); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}

	log.Info("trained reference model",
		zap.String("exercise", string(key)),
		zap.Int("reference_frames", artifact.NumReferenceFrames()),
		zap.String("output", base),
	)
	return nil
}

func queueModeFromString(s string) streamserver.QueueMode {
	if s == "depth_one" {
		return streamserver.QueueDepthOne
	}
	return streamserver.QueueDrop
}
