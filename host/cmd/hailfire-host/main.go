package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"hailfire/config"
	"hailfire/controller"
	"hailfire/host/mcu"
	"hailfire/host/monitor"
	"hailfire/host/serial"
	"hailfire/logging"
	"hailfire/metrics"
	"hailfire/sim"
)

var (
	configPath  = flag.String("config", "", "TOML configuration file")
	device      = flag.String("device", "", "Serial device of the USB bridge (overrides host.device)")
	useSim      = flag.Bool("sim", false, "Run against an in-process simulated controller")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (overrides host.metrics_addr)")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logging.Init("hailfire-host", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("hailfire-host failed")
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}
	if *device != "" {
		cfg.Host.Device = *device
	}
	if *useSim {
		cfg.Host.Bridge = "sim"
	}
	if *metricsAddr != "" {
		cfg.Host.MetricsAddr = *metricsAddr
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logging.ApplyEnv(&cfg.Log)
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	sh := &shell{out: os.Stdout, listPorts: serial.ListPorts}

	switch cfg.Host.Bridge {
	case "sim":
		s, err := startSim(ctx, cfg, reg, log)
		if err != nil {
			return err
		}
		defer s.close()
		sh.mcu, sh.stats = s.mcu, s.stats
		fmt.Printf("Connected to simulated controller (%s)\n", s.identity)
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		m, id, err := mcu.Connect(connectCtx, serial.Config{
			Device:      cfg.Host.Device,
			Baud:        cfg.Host.Baud,
			ReadTimeout: cfg.Host.ReadTimeout(),
		}, cfg.Host.ReadTimeout()*10)
		cancel()
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.Host.Device, err)
		}
		defer m.Close()
		sh.mcu = m
		fmt.Printf("Connected to %s on %s\n", id, cfg.Host.Device)
	}

	sh.monitor = func(interval time.Duration) error {
		return monitor.Run(sh.mcu, interval, 200)
	}

	if cfg.Host.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Host.MetricsAddr, reg, log); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	return repl(ctx, sh, os.Stdin)
}

func repl(ctx context.Context, sh *shell, in io.Reader) error {
	fmt.Fprintln(sh.out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		quit, err := sh.exec(scanner.Text())
		if err != nil {
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// simulation is a controller behind a software USB bridge, reached
// through the same client stack as real hardware
type simulation struct {
	mcu      *mcu.MCU
	identity string
	stats    func() string
	close    func()
}

func startSim(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log zerolog.Logger) (*simulation, error) {
	ctl, err := controller.New(cfg.ControllerConfig(), controller.WithLogger(log.With().Str("component", "controller").Logger()))
	if err != nil {
		return nil, err
	}
	bench, err := sim.NewBench(ctl, cfg.Link.TickRatio)
	if err != nil {
		return nil, err
	}

	snapshot := func() (s controller.Stats) {
		bench.Do(func() { s = ctl.Stats() })
		return s
	}
	if err := metrics.RegisterController(reg, snapshot); err != nil {
		return nil, err
	}
	if err := metrics.RegisterLink(reg, bench.Transfers); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	hostSide, simSide := net.Pipe()
	server := sim.NewBridgeServer(simSide, bench, "hailfire-sim", log.With().Str("component", "bridge").Logger())
	server.SetDictionary(ctl.Table().Dictionary())
	go func() {
		if err := server.Serve(ctx); err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("bridge server stopped")
		}
	}()

	// Keep the controller clock running between transactions, capped
	// well below real time on fast clocks
	idleTicks := int(min(cfg.Controller.ClockHz/100, 20_000))
	go func() {
		t := time.NewTicker(10 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				bench.Run(idleTicks)
			}
		}
	}()

	bridge, err := serial.NewBridge(ctx, hostSide, serial.DefaultBridgeTimeout)
	if err != nil {
		cancel()
		simSide.Close()
		return nil, err
	}
	m, err := mcu.Attach(ctx, bridge)
	if err != nil {
		cancel()
		bridge.Close()
		simSide.Close()
		return nil, err
	}

	return &simulation{
		mcu:      m,
		identity: bridge.Identity(),
		stats: func() string {
			s := snapshot()
			tx, bits := bench.Transfers()
			return fmt.Sprintf("decoder %+v\ndispatch %+v\nresets %d, adc errors %d\nlink %d transactions, %d bits",
				s.Decoder, s.Dispatch, s.Resets, s.ADCErrors, tx, bits)
		},
		close: func() {
			cancel()
			bridge.Close()
			simSide.Close()
		},
	}, nil
}
