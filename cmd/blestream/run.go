package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/config"
	"github.com/srg/blestream/internal/connection"
	"github.com/srg/blestream/internal/device"
	goble "github.com/srg/blestream/internal/device/go-ble"
	"github.com/srg/blestream/internal/forward"
	"github.com/srg/blestream/internal/groutine"
	"github.com/srg/blestream/internal/reassembly"
	"github.com/srg/blestream/internal/scanner"
	"github.com/srg/blestream/internal/sink"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream packets from the sensor into the configured sink",
	Long: `Scan for the configured peripheral, subscribe to its first notifying
characteristic and store every reassembled packet. The agent reconnects on
its own when the link drops and runs until interrupted.`,
	RunE: runAgentCmd,
}

var runStatsInterval time.Duration

func init() {
	runCmd.Flags().DurationVar(&runStatsInterval, "stats-interval", time.Minute, "How often to log throughput counters (0 disables)")
}

// closableRadio is a device.Radio backed by an adapter that must be released.
type closableRadio interface {
	device.Radio
	Close() error
}

// Factories replaced by tests.
var (
	radioFactory = func(logger *logrus.Logger, cfg config.DeviceConfig) (closableRadio, error) {
		return goble.NewRadio(logger, cfg.ConnectTimeout)
	}
	sinkFactory = func(ctx context.Context, cfg config.SinkConfig, logger *logrus.Logger) (sink.Sink, error) {
		return sink.Open(ctx, cfg, logger)
	}
)

func runAgentCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig(cmd, true)
	if err != nil {
		return err
	}
	logger, closer, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("Shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runAgent(ctx, cfg, logger, runStatsInterval)
}

// runAgent wires the pipeline and blocks until ctx is done or streaming fails.
func runAgent(ctx context.Context, cfg *config.Config, logger *logrus.Logger, statsInterval time.Duration) error {
	asm, err := reassembly.NewReassembler(cfg.Device.PacketLength, cfg.Device.Width())
	if err != nil {
		return err
	}

	radio, err := radioFactory(logger, cfg.Device)
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	defer radio.Close()

	store, err := sinkFactory(ctx, cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s sink: %w", cfg.Sink.Kind, err)
	}
	defer store.Close()

	fw := forward.New(store, cfg.Sink.Destination, forward.Options{
		QueueSize:    cfg.Forward.QueueSize,
		Workers:      cfg.Forward.Workers,
		WriteTimeout: cfg.Forward.WriteTimeout,
	}, logger)
	fw.Start(ctx)
	defer fw.Close()

	mgr := connection.NewManager(connection.Params{
		Identity: connection.Identity{Name: cfg.Device.Name},
		Finder: scanner.NewScanner(radio, scanner.Options{
			Dwell:   cfg.Device.ScanDwell,
			Backoff: cfg.Device.RetryBackoff,
		}, logger),
		Radio:     radio,
		Assembler: asm,
		Out:       fw,
		Options: connection.Options{
			RetryBackoff: cfg.Device.RetryBackoff,
			PollInterval: cfg.Device.PollInterval,
		},
		Logger: logger,
	})

	logger.WithFields(logrus.Fields{
		"device":        cfg.Device.Name,
		"packet_length": asm.PacketLength(),
		"packet_bytes":  asm.Threshold(),
		"width":         asm.Width(),
		"sink":          cfg.Sink.Kind,
		"destination":   cfg.Sink.Destination,
	}).Info("Starting agent")

	if statsInterval > 0 {
		groutine.Go(ctx, "stats", func(ctx context.Context) {
			reportStats(ctx, statsInterval, mgr, fw, logger)
		})
	}

	err = mgr.Run(ctx)
	logStats(mgr, fw, logger)
	return err
}

func reportStats(ctx context.Context, every time.Duration, mgr *connection.Manager, fw *forward.Forwarder, logger *logrus.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(mgr, fw, logger)
		}
	}
}

func logStats(mgr *connection.Manager, fw *forward.Forwarder, logger *logrus.Logger) {
	st := mgr.Stats()
	m := fw.Metrics()
	logger.WithFields(logrus.Fields{
		"state":     st.State,
		"sessions":  st.Sessions,
		"fragments": st.Fragments,
		"packets":   st.Packets,
		"written":   m.Written,
		"failed":    m.Failed,
		"dropped":   m.Dropped,
	}).Info("Stats")
}
