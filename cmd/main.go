package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/control"
	"boilerctl/internal/handlers"
	"boilerctl/internal/logger"
	"boilerctl/internal/metrics"
	"boilerctl/internal/models"
	"boilerctl/internal/relay"
	"boilerctl/internal/repository"
	"boilerctl/internal/repository/db"
	"boilerctl/internal/sensors"
	"boilerctl/internal/server"
	"boilerctl/internal/service"
)

func main() {
	// load configs/config.yml before the logger so the level is honored
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	// open DB
	db, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(db)

	// The event log is built first: the control core records into it and
	// the services flush it.
	events := service.NewEventLogService(repos.EventRepo, log.Component("events"))

	// context for the control loops and background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plane, err := buildControlPlane(ctx, cfg, repos, events, log)
	if err != nil {
		log.Fatalw("failed to assemble control core", "err", err)
	}

	services := service.NewService(plane.core, repos, events, *cfg, log)

	// Re-apply persisted safety overrides and the commanded posture from
	// the previous run. Neither failure is fatal: the boiler boots into
	// its defaults, disabled.
	if err := services.SafetyConfig.Restore(ctx); err != nil {
		log.Errorw("failed to restore safety settings", "err", err)
	}
	if err := services.Boiler.RestoreState(ctx); err != nil {
		log.Errorw("failed to restore boiler state", "err", err)
	}

	promMetrics := metrics.New(services.Monitoring)
	apiHandler := handlers.NewHandler(services, promMetrics, log.Component("http"))

	// control loops
	go plane.machine.Run(ctx)
	go plane.regulator.Run(ctx)
	go plane.health.Run(ctx)
	go plane.tracker.Run(ctx, cfg.Control.PersistPeriod)
	go events.Run(ctx)

	// sensor feed: the real bus when configured, the simulator otherwise
	switch {
	case cfg.MQTT.Enabled:
		sub, err := sensors.NewSubscriber(*cfg, plane.store, log.Component("sensors"))
		if err != nil {
			log.Fatalw("failed to connect sensor bus", "err", err)
		}
		defer func() {
			if cerr := sub.Close(); cerr != nil {
				log.Errorw("failed to close sensor bus", "err", cerr)
			}
		}()

		telemetry, err := service.NewTelemetry(*cfg, services.Monitoring, promMetrics, log.Component("telemetry"))
		if err != nil {
			log.Fatalw("failed to connect telemetry publisher", "err", err)
		}
		go telemetry.Run(ctx)

		if cfg.Simulation.Enabled {
			log.Warnw("simulation ignored while the mqtt sensor bus is enabled")
		}
	case cfg.Simulation.Enabled:
		go sensors.NewSimulator(plane.store, plane.relays).Run(ctx, cfg.Simulation.Tick)
	default:
		log.Warnw("no sensor source configured; snapshots will go stale and hold the burner off")
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	log.Infow("boilerctl started", "port", cfg.Port, "db", cfg.DB.Path,
		"mqtt", cfg.MQTT.Enabled, "gpio", cfg.GPIO.Enabled, "simulation", cfg.Simulation.Enabled)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

// controlPlane groups the assembled control core: the loops main starts
// and the views the services consume.
type controlPlane struct {
	core      service.Core
	machine   *control.Machine
	regulator *control.Regulator
	health    *control.HealthMonitor
	tracker   *control.RuntimeTracker
	store     *sensors.SnapshotStore
	relays    *relay.Controller
}

// buildControlPlane wires the safety core bottom-up: outputs, trackers,
// the failsafe coordinator, then the burner machine and regulator on
// top. Failsafe handlers are registered last, before any loop starts.
func buildControlPlane(
	ctx context.Context,
	cfg *config.Config,
	repos *repository.Repository,
	events *service.EventLogService,
	log *logger.Logger,
) (*controlPlane, error) {
	params, err := config.NewSafetyParams(cfg.Safety)
	if err != nil {
		return nil, fmt.Errorf("safety parameters: %w", err)
	}

	store := sensors.NewSnapshotStore(log.Component("sensors"))

	driver, err := buildRelayDriver(cfg)
	if err != nil {
		return nil, err
	}
	relays := relay.NewController(driver, params, log.Component("relay"))

	tracker := control.NewRuntimeTracker(ctx, repos.Counters, log.Component("runtime"))
	coord := control.NewCoordinator(repos.Emergency, store, relays, params, tracker, log.Component("failsafe"))
	relays.BindEscalator(coord)

	flap := control.NewAntiFlap(log.Component("antiflap"))
	pumps := control.NewPumpController(relays, tracker, log.Component("pumps"))
	validator := control.NewValidator(params, tracker, log.Component("validator"))
	interlock := control.NewInterlockMonitor(store, relays, params, coord, log.Component("interlock"))
	pid := control.NewPID("boiler", control.DefaultTuning, params, log.Component("pid"))

	machine := control.NewMachine(control.MachineDeps{
		Store:     store,
		Relays:    relays,
		Pumps:     pumps,
		Flap:      flap,
		Validator: validator,
		Interlock: interlock,
		Coord:     coord,
		Runtime:   tracker,
		Params:    params,
		Events:    events,
	}, log.Component("burner"))

	regulator := control.NewRegulator(store, machine, flap, pid, log.Component("regulator"))
	health := control.NewHealthMonitor(store, relays, params, coord, log.Component("health"))

	// Severe escalations fan out in registration order: fuel first. The
	// pumps handler looks redundant next to the machine's own shutdown,
	// but it still runs when the machine is already latched stopping.
	coord.Register(models.SubsystemBurner, func(_ models.FailsafeLevel, reason models.FailsafeReason) {
		machine.EmergencyShutdown(reason.String())
	})
	coord.Register(models.SubsystemPumps, func(models.FailsafeLevel, models.FailsafeReason) {
		pumps.ForceOn()
	})
	coord.Register(models.SubsystemRegulator, regulator.OnFailsafe)

	return &controlPlane{
		core: service.Core{
			Burner:    machine,
			Regulator: regulator,
			Failsafe:  coord,
			Runtime:   tracker,
			Sensors:   store,
			Relays:    relays,
			Tuner:     pid,
			Safety:    params,
		},
		machine:   machine,
		regulator: regulator,
		health:    health,
		tracker:   tracker,
		store:     store,
		relays:    relays,
	}, nil
}

// buildRelayDriver selects the physical GPIO bank when configured and
// the in-memory driver otherwise.
func buildRelayDriver(cfg *config.Config) (relay.Driver, error) {
	if !cfg.GPIO.Enabled {
		return relay.NewMemoryDriver(), nil
	}
	driver, err := relay.NewGPIODriver(cfg.GPIO.Chip, cfg.GPIO.Lines, cfg.GPIO.ActiveLow)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.GPIO.Chip, err)
	}
	return driver, nil
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "boilerctl.db")
		path = "boilerctl.db"
	}
	return db.InitDB(path)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop the control loops; the relay layer parks the outputs safe
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
