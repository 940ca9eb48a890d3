// Command sdrtcp-airspy serves an rtl_tcp-compatible stream from an
// Airspy HF+ or Discovery.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"hz.tools/sdrtcpd/config"
	"hz.tools/sdrtcpd/control"
	"hz.tools/sdrtcpd/internal/airspy"
	"hz.tools/sdrtcpd/listener"
	"hz.tools/sdrtcpd/metrics"
	"hz.tools/sdrtcpd/pack"
	"hz.tools/sdrtcpd/register"
)

func main() {
	logger := log.Default()

	cfg, err := config.ParseFlags(pflag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatal("config", "err", err)
	}
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	dev, err := airspy.Open()
	if err != nil {
		logger.Fatal("opening airspy device", "err", err)
	}
	defer dev.Close()

	if err := run(cfg, dev, logger); err != nil {
		logger.Fatal("sdrtcp-airspy", "err", err)
	}
}

func run(cfg config.Config, dev *airspy.Device, logger *log.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dev.SetSampleRate(cfg.SampleRateHz); err != nil {
		return err
	}
	if err := dev.SetCenterFrequency(control.TunedFrequency(cfg.FrequencyHz, cfg.PPM)); err != nil {
		return err
	}
	if err := dev.SetGain(cfg.GainTenthsDB); err != nil {
		logger.Warn("initial gain failed", "err", err)
	}
	if cfg.BiasTee {
		logger.Warn("bias tee requested but not supported on the Airspy HF")
	}

	ctrl := control.New(dev, logger)

	var bitFormat pack.Format
	switch cfg.BitWidth {
	case 16:
		bitFormat = pack.FormatIQ16
	case 8:
		bitFormat = pack.FormatIQ8
	case 4:
		bitFormat = pack.FormatIQ4
	}
	dev.SetBitWidth(cfg.BitWidth)
	packer, err := pack.New(bitFormat)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Warn("metrics server exited", "err", err)
			}
		}()
	}

	l, err := listener.New(cfg.SampleAddr(), listener.DefaultFactory(dev, ctrl, packer, cfg.QueueDepth, logger, m), logger)
	if err != nil {
		return err
	}
	defer l.Close()
	logger.Info("listening for rtl_tcp clients", "addr", l.Addr())

	if cfg.RegisterPort != 0 {
		reporter, err := register.New(cfg.RegisterAddr(), dev, time.Duration(cfg.RegisterPeriod*float64(time.Second)), logger)
		if err != nil {
			return err
		}
		defer reporter.Close()
		go func() {
			if err := reporter.Run(ctx); err != nil {
				logger.Warn("register reporter exited", "err", err)
			}
		}()
	}

	return l.Run(ctx)
}
