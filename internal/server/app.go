// Package server wires the drawer box: database, evidence store, MQTT
// gateway and card bridge, camera and analyzer, services and the HTTP API.
// It handles graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/capture"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/config"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/evidence"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/httpapi"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/repomanager"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	metrics *metrics.Metrics

	sessionService *services.SessionService
	bridge         *hardware.RFIDBridge
	httpServer     *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := evidence.Open(ctx, evidenceConfig(c))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("evidence store init error: %w", err)
	}

	m := metrics.New()
	gateway := hardware.NewMQTTGateway(gatewayConfig(c), logger)

	adapter := capture.NewAdapter(captureConfig(c), newCamera(c), newAnalyzer(c), store, logger, m)

	identity := services.NewIdentityService(db, rm, c.ActiveSessionWindow, logger, m)
	sessions := services.NewSessionService(db, rm, logger, m)
	inventory := services.NewInventoryService(db, rm)
	sequencer := services.NewSequencer(db, rm, gateway, adapter, services.SequencerConfig{
		ReaderID:        c.ReaderID,
		DefaultReaderID: c.DefaultReaderID,
	}, logger, m)

	app := &App{
		config:         c,
		logger:         logger,
		db:             db,
		metrics:        m,
		sessionService: sessions,
	}

	if c.RFIDBridgeEnabled {
		app.bridge = hardware.NewRFIDBridge(bridgeConfig(c), identity.HandleTap, logger)
	}

	app.httpServer = httpapi.NewServer(c.HTTPAddr, httpapi.Deps{
		Identity:  identity,
		Sessions:  sessions,
		Inventory: inventory,
		Sequencer: sequencer,
		Evidence:  store,
	}, logger, m)

	return app, nil
}

func evidenceConfig(c *config.Config) evidence.Config {
	return evidence.Config{
		Driver:     evidence.Driver(c.EvidenceDriver),
		Root:       c.MediaRoot,
		Bucket:     c.S3Bucket,
		Region:     c.S3Region,
		Endpoint:   c.S3BaseEndpoint,
		AccessKey:  c.S3RootUser,
		SecretKey:  c.S3RootPassword,
		PresignTTL: c.PresignTTL,
	}
}

func gatewayConfig(c *config.Config) hardware.GatewayConfig {
	return hardware.GatewayConfig{
		Host:           c.MQTTHost,
		Port:           c.MQTTPort,
		User:           c.MQTTUser,
		Pass:           c.MQTTPass,
		Base:           c.MQTTBase,
		PublishTimeout: c.PublishTimeout,
		Mode:           c.CommandMode,
		TimeoutS:       float64(c.CommandTimeoutS),
	}
}

func bridgeConfig(c *config.Config) hardware.BridgeConfig {
	return hardware.BridgeConfig{
		Host:     c.MQTTHost,
		Port:     c.MQTTPort,
		User:     c.MQTTUser,
		Pass:     c.MQTTPass,
		Base:     c.MQTTBase,
		ClientID: c.MQTTClientID,
	}
}

func captureConfig(c *config.Config) capture.Config {
	return capture.Config{
		VisionDir:   c.VisionDir,
		Width:       c.TargetWidth,
		Height:      c.TargetHeight,
		Timeout:     c.AnalysisTimeout,
		GrabTimeout: c.CaptureTimeout,
	}
}

// newCamera splits the capture timeout between the MJPG and the raw
// pipeline so both get tried.
func newCamera(c *config.Config) *capture.GstCamera {
	return &capture.GstCamera{
		Index:           c.CameraIndex,
		Width:           c.TargetWidth,
		Height:          c.TargetHeight,
		Warmup:          c.CameraWarmupFrames,
		PipelineTimeout: c.CaptureTimeout / 2,
	}
}

func newAnalyzer(c *config.Config) capture.Analyzer {
	if c.AnalyzerMode == config.AnalyzerExec {
		return &capture.ExecAnalyzer{Binary: c.AnalyzerBinary}
	}
	return capture.NewInProcessAnalyzer()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startBridge failures are logged only: the kiosk can still post taps to
// the HTTP endpoint.
func (app *App) startBridge(ctx context.Context) {
	if app.bridge == nil {
		return
	}
	if err := app.bridge.Start(ctx); err != nil {
		app.logger.Error(ctx, "rfid bridge start", "error", err)
		return
	}
	<-ctx.Done()
	app.bridge.Stop()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startBridge(ctx)
	}()
	go func() {
		defer wg.Done()
		app.sessionService.RunExpirySweep(ctx, app.config.SessionSweepInterval, app.config.SessionMaxAge)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
