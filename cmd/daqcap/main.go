// daqcap runs a single headless acquisition from the command line, for runs
// that must outlive the operator console. Ctrl+C stops the run gracefully;
// the capture file is finalized before exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"daq-console/internal/daq"
	"daq-console/internal/domain"
	"daq-console/internal/logger"
)

var flags = struct {
	address        string
	outDir         string
	fileBase       string
	channels       int
	recordLength   int
	preTrigger     int
	dcOffset       string
	softwareTrig   bool
	softwareHz     int
	samplePeriodNs float64
	maxSizeMB      int
	nEvents        int
	durationSec    int
	logEvery       int
	debug          bool
}{}

var rootCmd = &cobra.Command{
	Use:   "daqcap",
	Short: "Capture digitizer waveforms to a file",
	Long:  `Acquire events from a digitizer (or the simulated source) and append them to timestamped capture files. Press Ctrl+C to stop the acquisition; the open file is finalized on every exit path.`,
	RunE:  runCapture,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.address, "address", "a", "sim://bench", "device address URI")
	f.StringVarP(&flags.outDir, "out-dir", "o", ".", "output directory")
	f.StringVar(&flags.fileBase, "file-base", "scope", "base output file name")
	f.IntVar(&flags.channels, "channels", 1, "number of active channels")
	f.IntVar(&flags.recordLength, "record-length", 4084, "record length in samples")
	f.IntVar(&flags.preTrigger, "pre-trigger", 2042, "pre-trigger in samples")
	f.StringVar(&flags.dcOffset, "dc-offset", "10", "DC offset percentage")
	f.BoolVar(&flags.softwareTrig, "software-trigger", false, "use the software trigger source")
	f.IntVar(&flags.softwareHz, "software-rate", 1000, "software trigger rate in Hz")
	f.Float64Var(&flags.samplePeriodNs, "sample-period", 8, "sampling period in ns")
	f.IntVar(&flags.maxSizeMB, "max-size", 100, "max capture file size in MB before rotation")
	f.IntVarP(&flags.nEvents, "n-events", "n", 0, "total number of events to acquire (0 = unbounded)")
	f.IntVarP(&flags.durationSec, "duration", "d", 0, "maximum acquisition time in seconds (0 = unbounded)")
	f.IntVar(&flags.logEvery, "log-every", 100, "emit a progress line every N events")
	f.BoolVar(&flags.debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{Level: "info", Debug: flags.debug}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.WithComponent("daqcap")

	trigSource := "TrgIn"
	if flags.softwareTrig {
		trigSource = "SwTrg"
	}

	cfg := domain.AcquisitionConfig{
		DeviceAddress:     flags.address,
		ActiveChannels:    flags.channels,
		RecordLength:      flags.recordLength,
		PreTrigger:        flags.preTrigger,
		DCOffsetPct:       flags.dcOffset,
		TriggerSource:     trigSource,
		SoftwareTriggerHz: flags.softwareHz,
		SamplePeriodNs:    flags.samplePeriodNs,
		OutputDir:         flags.outDir,
		FileBase:          flags.fileBase,
		MaxEvents:         flags.nEvents,
		MaxDuration:       time.Duration(flags.durationSec) * time.Second,
		MaxFileBytes:      int64(flags.maxSizeMB) * 1024 * 1024,
		LogEvery:          flags.logEvery,
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := daq.Open(ctx, cfg)
	if err != nil {
		return err
	}

	runner := daq.NewRunner(log)
	result, err := runner.Run(ctx, daq.Request{
		Config: cfg,
		Source: source,
		OnLog: func(line string) {
			log.Info().Msg(line)
		},
		OnFileFinalized: func(path string, events int) {
			log.Info().Str("path", filepath.Base(path)).Int("events", events).Msg("capture file finalized")
		},
	})
	if err != nil {
		return err
	}

	log.Info().Int("events", result.Events).Int("files", len(result.Files)).Msg("acquisition finished")
	return nil
}
