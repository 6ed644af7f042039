package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/coordinator"
	"github.com/rkotov-iot/meshlink/internal/telemetry"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/radio/loopback"
)

func newRunCommand() *cobra.Command {
	var (
		nodeCount   int
		networkName string
		channel     uint8
		tick        time.Duration
		duration    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulated mesh: N+1 devices that elect one gateway among themselves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd, nodeCount, networkName, channel, tick, duration, metricsAddr)
		},
	}

	cmd.Flags().IntVar(&nodeCount, "nodes", 4, "number of devices in addition to the first one; all of them contend for gateway")
	cmd.Flags().StringVar(&networkName, "network", "meshsim", "network name all devices join")
	cmd.Flags().Uint8Var(&channel, "channel", protocol.DefaultChannel, "radio channel")
	cmd.Flags().DurationVar(&tick, "tick", 100*time.Millisecond, "cooperative tick period")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = run until interrupted)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve aggregate /metrics on this address (e.g. :9090)")

	return cmd
}

func runSim(cmd *cobra.Command, nodeCount int, networkName string, channel uint8, tick, duration time.Duration, metricsAddr string) error {
	log, err := telemetry.NewLogger(logLevel, logFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	metrics := telemetry.NewMetrics()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		log.Infow("serving metrics", "addr", metricsAddr)
	}

	ether := loopback.NewEther()
	devices := make([]*coordinator.Coordinator, 0, nodeCount+1)

	gw := coordinator.New(ether.NewAdapter(deviceMAC(0)),
		coordinator.WithClock(clock.System{}),
		coordinator.WithLogger(log.Named("gw")),
		coordinator.WithMetrics(metrics),
	)
	gw.SetNodeStatusCallback(func(id protocol.LogicalID, connected bool) {
		log.Infow("node status", "id", id, "connected", connected)
	})
	if err := gw.Begin(networkName, channel); err != nil {
		return fmt.Errorf("gateway begin: %w", err)
	}
	devices = append(devices, gw)

	for i := 1; i <= nodeCount; i++ {
		name := fmt.Sprintf("node-%d", i)
		n := coordinator.New(ether.NewAdapter(deviceMAC(i)),
			coordinator.WithClock(clock.System{}),
			coordinator.WithLogger(log.Named(name)),
			coordinator.WithMetrics(metrics),
		)
		n.SetGatewayStatusCallback(func(connected bool) {
			log.Infow("gateway status", "device", name, "connected", connected)
		})
		if err := n.Begin(networkName, channel); err != nil {
			return fmt.Errorf("%s begin: %w", name, err)
		}
		devices = append(devices, n)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Infow("simulation started", "nodes", nodeCount, "network", networkName, "channel", channel)
	for {
		select {
		case <-ticker.C:
			for _, d := range devices {
				d.Update()
			}
		case <-deadline:
			log.Infow("duration elapsed, stopping")
			return nil
		case <-ctx.Done():
			log.Infow("interrupted, stopping")
			return nil
		}
	}
}

func deviceMAC(i int) protocol.MAC {
	return protocol.MAC{0x02, 0x00, 0x00, 0x00, 0x00, byte(i)}
}
