// Package serve implements the command that runs the web application.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/oncoderma/oncoderma-go/internal/buildinfo"
	"github.com/oncoderma/oncoderma-go/internal/chat"
	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/httpcontroller"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/media"
	"github.com/oncoderma/oncoderma-go/internal/mqtt"
	"github.com/oncoderma/oncoderma-go/internal/notification"
	"github.com/oncoderma/oncoderma-go/internal/observability"
	"github.com/oncoderma/oncoderma-go/internal/telemetry"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		Long:  "Load the classification model, open the database and serve the web interface until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", "", "Address to bind the web server to")
	cmd.Flags().String("port", "", "Port for the web server")
	cmd.Flags().String("model", "", "Path to the TFLite model file")

	for key, flag := range map[string]string{
		"webserver.listen":     "listen",
		"webserver.port":       "port",
		"classifier.modelpath": "model",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Run starts every service and blocks until ctx is cancelled, SIGINT or
// SIGTERM is received, or the HTTP server fails.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Global().Module("main")

	reporter, err := telemetry.Init(settings, build)
	if err != nil {
		// Error reporting is optional; keep serving without it
		log.Warn("failed to initialize error reporting", logger.Error(err))
	} else {
		defer reporter.Flush()
	}

	var metrics *observability.Metrics
	if settings.Observability.Metrics.Enabled {
		if metrics, err = observability.NewMetrics(); err != nil {
			return err
		}
	}

	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	}()

	model := classifier.LoadModel(settings)
	defer model.Close()
	if metrics != nil {
		model.SetMetrics(metrics.Classifier)
		metrics.Classifier.SetModelReady(model.Ready())
	}

	mediaStore, err := media.New(settings.WebServer.MediaRoot)
	if err != nil {
		return err
	}
	defer func() { _ = mediaStore.Close() }()

	chatService, err := chat.NewService(store, &settings.Chat)
	if err != nil {
		return err
	}
	defer chatService.Close()
	if metrics != nil {
		chatService.SetMetrics(metrics.Chat)
	}

	deps := httpcontroller.Dependencies{
		Settings:   settings,
		DS:         store,
		Classifier: model,
		Chat:       chatService,
		Media:      mediaStore,
		Metrics:    metrics,
		Build:      build,
	}

	if dispatcher, cleanup := newDispatcher(ctx, settings, store, metrics); dispatcher != nil {
		defer cleanup()
		deps.Notifier = dispatcher
	}

	server, err := httpcontroller.New(deps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		rotateLogsOnHangup(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("OncoDerma started",
		logger.String("version", build.GetVersion()),
		logger.String("address", server.Addr()),
		logger.Bool("model_ready", model.Ready()),
		logger.Bool("chat_enabled", chatService.Enabled()),
		logger.Bool("notifications", deps.Notifier != nil))

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("OncoDerma stopped")
	return nil
}

// rotateLogsOnHangup reopens the log file on every SIGHUP until ctx is done.
func rotateLogsOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logger.Global().Rotate(); err != nil {
				logger.Global().Module("main").Warn("failed to rotate log file", logger.Error(err))
			}
		}
	}
}

// newDispatcher builds the high-risk alert and research feed dispatcher.
// It returns nil when neither channel is configured. Channel setup failures
// are logged and only disable that channel.
func newDispatcher(ctx context.Context, settings *conf.Settings, store datastore.Interface, metrics *observability.Metrics) (*notification.Dispatcher, func()) {
	log := logger.Global().Module("main")
	opts := notification.Options{
		Topic:    settings.Research.MQTT.Topic,
		Instance: settings.Main.Name,
		Timeout:  settings.Notification.Timeout,
	}

	if settings.Notification.Enabled {
		alerter, err := notification.NewShoutrrrAlerter(settings.Notification.URLs, settings.Notification.Timeout)
		if err != nil {
			log.Error("high-risk alerts disabled", logger.Error(err))
		} else {
			opts.Alerter = alerter
		}
	}

	var client mqtt.Client
	if settings.Research.MQTT.Enabled {
		c, err := mqtt.NewClient(mqtt.ConfigFromSettings(settings))
		if err == nil {
			err = c.Connect(ctx)
		}
		if err != nil {
			log.Error("research feed disabled", logger.Error(err))
		} else {
			client = c
			opts.Publisher = c
		}
	}

	if opts.Alerter == nil && opts.Publisher == nil {
		return nil, func() {}
	}

	dispatcher := notification.NewDispatcher(store, opts)
	if metrics != nil {
		dispatcher.SetMetrics(metrics.Notification)
	}

	return dispatcher, func() {
		// Drain pending deliveries before the broker goes away
		dispatcher.Close()
		if client != nil {
			client.Disconnect()
		}
	}
}
