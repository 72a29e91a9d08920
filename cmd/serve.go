package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/detection"
	"github.com/kozaktomas/companion/internal/encounter"
	"github.com/kozaktomas/companion/internal/enrichment"
	"github.com/kozaktomas/companion/internal/reminder"
	"github.com/kozaktomas/companion/internal/speech"
	"github.com/kozaktomas/companion/internal/web"
	"github.com/kozaktomas/companion/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the companion service",
	Long: `Start the companion service.

The service exposes the HTTP API used by the caregiver app: detection control
and live detection events, the save flow for unknown faces, audio toggle,
task reminders and the known-people registry.

Camera:
  CAMERA_URL  snapshot endpoint of an IP camera
  CAMERA_DIR  directory of frames to replay instead

Speech:
  SPEECH_BINARY=log  log utterances instead of playing them (headless)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("memory", false, "Keep all data in memory instead of PostgreSQL")
	serveCmd.Flags().Bool("detect", false, "Start face detection right away")
	serveCmd.Flags().Bool("reminders", true, "Start task reminders right away")
}

// resolveServeHostPort lets explicit flags win over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func newSynthesizer(cfg *config.Config, log *zap.Logger) speech.Synthesizer {
	if cfg.Speech.Binary == "log" {
		return speech.NewLogSynthesizer(log, 60*time.Millisecond)
	}
	return speech.NewExecSynthesizer(cfg.Speech.Binary, cfg.Speech.Voice)
}

// newFrameSource picks the camera. A missing or broken camera fails
// activation with a camera error instead of the service refusing to start.
func newFrameSource(cfg *config.Config) (camera.Source, []func(ctx context.Context) error) {
	switch {
	case cfg.Camera.Dir != "":
		src, err := camera.NewDirSource(cfg.Camera.Dir)
		if err != nil {
			return nil, []func(ctx context.Context) error{func(context.Context) error { return err }}
		}
		return src, nil
	case cfg.Camera.URL != "":
		src := camera.NewHTTPSource(cfg.Camera.URL)
		return src, []func(ctx context.Context) error{src.Probe}
	default:
		noCamera := func(ctx context.Context) error {
			return fmt.Errorf("%w: CAMERA_URL or CAMERA_DIR is not set", camera.ErrCameraUnavailable)
		}
		return nil, []func(ctx context.Context) error{noCamera}
	}
}

// newEnricher never fails: a provider that can't be built leaves the
// fallback description in place.
func newEnricher(ctx context.Context, cfg *config.Config, log *zap.Logger) *enrichment.Enricher {
	provider, err := enrichment.NewProvider(ctx, cfg)
	if err != nil {
		log.Warn("enrichment provider unavailable, using fallback descriptions", zap.Error(err))
	}
	return enrichment.New(provider, cfg.Prompts, cfg.Enrichment.Timeout, log)
}

func connectDetector(cfg *config.Config, log *zap.Logger) func(ctx context.Context) (camera.FaceDetector, error) {
	return func(ctx context.Context) (camera.FaceDetector, error) {
		d, err := connectEmbeddingServer(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStorage, err := initStorage(ctx, cfg, mustGetBool(cmd, "memory"), log)
	if err != nil {
		return err
	}
	defer closeStorage()

	notifier := speech.NewNotifier(ctx, newSynthesizer(cfg, log.Named("speech")), speech.Options{
		Cooldown: cfg.Speech.Cooldown,
		OwnerID:  cfg.PatientID,
		Settings: st.settings,
		Logger:   log.Named("speech"),
	})

	enricher := newEnricher(ctx, cfg, log.Named("enrichment"))
	machine := encounter.NewMachine(encounter.Config{
		OwnerID:    cfg.PatientID,
		People:     st.people,
		Encounters: st.encounters,
		Enricher:   enricher,
		Speaker:    notifier,
		Logger:     log.Named("encounter"),
	})

	events := handlers.NewEventBroadcaster()
	machine.OnDetection(events.PublishDetection)
	machine.OnError(events.PublishError)

	source, checks := newFrameSource(cfg)
	checks = append(checks, func(context.Context) error { return notifier.Available() })

	loop := detection.NewLoop(detection.Config{
		Source:   source,
		Handler:  machine,
		Speaker:  notifier,
		Connect:  connectDetector(cfg, log.Named("camera")),
		Checks:   checks,
		Interval: cfg.Detection.Interval,
		Logger:   log.Named("detection"),
	})

	scheduler := reminder.NewScheduler(notifier, log.Named("reminder"))
	feed := reminder.NewTaskFeed(st.tasks, cfg.PatientID, scheduler, constants.TaskRefreshInterval, log.Named("reminder"))
	if mustGetBool(cmd, "reminders") {
		tasks, err := feed.Refresh(ctx)
		if err != nil {
			log.Warn("reminders not started", zap.Error(err))
		} else {
			scheduler.Start(tasks, reminder.OptionsFromConfig(cfg.Reminders))
		}
	}
	go feed.Run(ctx)

	if mustGetBool(cmd, "detect") {
		if err := loop.Activate(ctx); err != nil {
			log.Warn("detection not started", zap.Error(err))
		}
	}

	server := web.NewServer(cfg, web.Dependencies{
		Detection: loop,
		Encounter: machine,
		Events:    events,
		Audio:     notifier,
		Reminders: scheduler,
		TaskFeed:  feed,
		Detector:  camera.NewEmbeddingDetector(cfg.Embedding.URLs[0]),
		Version:   Version,
	}, log.Named("web"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		loop.Close()
		scheduler.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting companion on http://%s:%d (patient %s)\n", cfg.Web.Host, cfg.Web.Port, cfg.PatientID)
	fmt.Println("Press Ctrl+C to stop")

	serveErr := server.Start()

	loop.Close()
	scheduler.Stop()
	machine.Wait()
	notifier.Close()
	if serveErr != nil {
		return fmt.Errorf("starting server: %w", serveErr)
	}
	return nil
}
