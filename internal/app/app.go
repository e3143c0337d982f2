// Package app wires the acquisition, power, display and telemetry parts
// into the device's main control loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vehicle-hud/internal/acquisition"
	"vehicle-hud/internal/config"
	"vehicle-hud/internal/display"
	"vehicle-hud/internal/power"
	"vehicle-hud/internal/protocol/signals"
	"vehicle-hud/internal/server"
	"vehicle-hud/internal/state"
	"vehicle-hud/internal/usecase"
)

type App struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger

	store      *state.Store
	loop       *acquisition.Loop
	controller *power.Controller
	dispatcher *usecase.DataDispatcher
	server     *server.StateServer
}

// New assembles the App around deps. The App owns deps from here on and
// closes them when Run returns.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	decoder, err := signals.NewDecoder(signals.Broadcast(), logger.Named("signals"))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		store:  state.NewStore(),
	}

	a.loop = acquisition.New(deps.Source, decoder, a.store, acquisition.Options{
		ReceiveTimeout: cfg.Acquisition.ReceiveTimeout,
		Yield:          cfg.Acquisition.Yield,
	}, logger.Named("acquisition"))

	var consumers ConsumerGroup
	if cfg.Display.Enabled {
		if deps.Panel == nil {
			return nil, errors.New("display enabled without a panel")
		}
		consumers = append(consumers, display.NewRenderer(deps.Panel, a.store, display.Options{
			Refresh:   cfg.Display.Refresh,
			InitRetry: cfg.Display.InitRetry,
		}, logger.Named("display")))
	}
	if cfg.Telemetry.Enabled {
		if deps.Producer == nil {
			return nil, errors.New("telemetry enabled without a producer")
		}
		a.dispatcher = usecase.NewDataDispatcher(deps.Producer, cfg.Telemetry.Topic, cfg.Telemetry.Workers, 256, logger.Named("dispatcher"))
		consumers = append(consumers, usecase.NewReporter(a.store, a.dispatcher, usecase.ReporterOptions{
			Device:       cfg.Device.ID,
			Interval:     cfg.Telemetry.Interval,
			Heartbeat:    cfg.Telemetry.Heartbeat,
			FlushTimeout: cfg.Telemetry.FlushTimeout,
		}, logger.Named("telemetry")))
	}

	a.controller = power.NewController(a.loop, a.store, deps.Governor, deps.Restarter, consumers, power.Options{
		Disabled:        cfg.Power.Disabled,
		SampleWindow:    cfg.Power.SampleWindow,
		Backoff:         cfg.Power.Backoff,
		TeardownTimeout: cfg.Power.TeardownTimeout,
		ActiveMHz:       cfg.Power.ActiveMHz,
		SleepMHz:        cfg.Power.SleepMHz,
	}, logger.Named("power"))

	if cfg.StateServer.Enabled {
		h := server.NewStateHandler(cfg.Device.ID, a.store, func() string { return a.controller.State().String() })
		a.server = server.NewStateServer(cfg.StateServer, logger.Named("server"), h)
	}

	return a, nil
}

// Store exposes the shared state, mainly for tests and tooling.
func (a *App) Store() *state.Store {
	return a.store
}

func (a *App) PowerState() power.State {
	return a.controller.State()
}

// Run is the device main loop: wait for the engine, drive while it runs,
// restart when it stops. It returns nil when ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if a.dispatcher != nil {
		a.dispatcher.Start()
		defer a.dispatcher.Stop()
	}
	if a.server != nil {
		go func() {
			if err := a.server.Start(ctx); err != nil {
				a.logger.Error("State server failed", zap.Error(err))
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := a.server.Stop(stopCtx); err != nil {
				a.logger.Warn("State server stop failed", zap.Error(err))
			}
		}()
	}
	defer a.controller.Stop()

	for {
		if err := a.controller.Probe(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("probe: %w", err)
		}

		restarted, err := a.drive(ctx)
		if err != nil {
			return err
		}
		if !restarted {
			return nil
		}
		// The restarter returned, so this process carries on into the next
		// probe; drop what the previous drive decoded.
		a.loop.Reset()
	}
}

// drive runs the acquisition loop and checks the engine every
// check_interval. It reports true when the engine stopped and the
// controller went back to probing.
func (a *App) drive(ctx context.Context) (bool, error) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	var loopErr error
	go func() {
		defer close(done)
		loopErr = a.loop.Run(loopCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	interval := a.cfg.Power.CheckInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-done:
			return false, fmt.Errorf("acquisition stopped: %w", loopErr)
		case <-ticker.C:
			err := a.controller.CheckEngine(ctx)
			if a.controller.State() == power.StateActive {
				continue
			}
			// A restarter that returns did not replace the process; keep
			// going from a fresh probe instead.
			if err != nil && ctx.Err() == nil {
				a.logger.Error("Restart failed, probing in process", zap.Error(err))
			}
			return true, nil
		}
	}
}

func (a *App) close() {
	if err := a.deps.Source.Close(); err != nil {
		a.logger.Warn("Failed to close bus source", zap.Error(err))
	}
	if a.deps.Producer != nil {
		a.deps.Producer.Close()
	}
	a.logger.Info("Stopped", zap.Any("acquisition", a.loop.Stats()))
}
