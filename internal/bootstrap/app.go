package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"daq-console/internal/capture"
	"daq-console/internal/config"
	"daq-console/internal/daq"
	"daq-console/internal/diagnostics"
	"daq-console/internal/domain"
	"daq-console/internal/jobs"
	"daq-console/internal/logger"
	"daq-console/internal/waveform"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrInvalidConfig is returned when a start request fails validation.
var ErrInvalidConfig = errors.New("invalid acquisition config")

// feedEventName is the push channel for live feed entries.
const feedEventName = "acquisition:entry"

// App wires configuration, the run supervisor, the acquisition runner, the
// latest-capture registry, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Supervisor  *jobs.Supervisor
	Runner      runRunner
	Registry    *capture.Registry
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	log         zerolog.Logger

	mu          sync.Mutex
	activeRunID string
	cancel      context.CancelFunc
	feed        *jobs.Feed
	runtimeCtx  context.Context
	openSource  func(ctx context.Context, cfg domain.AcquisitionConfig) (daq.Source, error)
}

// runRunner isolates the acquisition runner behind an interface.
type runRunner interface {
	Run(ctx context.Context, req daq.Request) (daq.Result, error)
}

// StartRequest carries per-run overrides on top of persisted settings.
type StartRequest struct {
	FileBase       string `json:"fileBase,omitempty"`
	MaxEvents      int    `json:"maxEvents,omitempty"`
	MaxDurationSec int    `json:"maxDurationSec,omitempty"`
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".daq-console", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Supervisor:  jobs.NewSupervisor(),
		Runner:      daq.NewRunner(logger.WithComponent("runner")),
		Registry:    capture.NewRegistry(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		log:         logger.WithComponent("app"),
		feed:        jobs.NewFeed(1000),
		openSource:  daq.Open,
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "DAQ Console",
		Width:       1280,
		Height:      820,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	report := a.checker.Run(settings)

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = report
	a.mu.Unlock()

	return report, nil
}

// StartAcquisition validates the request, claims the single run slot, opens
// the source, and launches the acquisition worker. Config and device
// availability errors return synchronously; mid-run faults surface through
// the run status and the feed.
func (a *App) StartAcquisition(req StartRequest) (domain.Run, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Run{}, fmt.Errorf("load settings: %w", err)
	}

	cfg := buildConfig(settings, req)
	if err := validateConfig(cfg); err != nil {
		return domain.Run{}, err
	}

	runID := uuid.NewString()
	run := domain.Run{
		ID:         runID,
		OutputBase: filepath.Join(cfg.OutputDir, cfg.FileBase),
		StartedAt:  time.Now().UTC(),
	}

	// Claim the slot and install the cancellation handle atomically, so a
	// stop request arriving during the device handshake is never dropped.
	a.mu.Lock()
	if err := a.Supervisor.Start(run); err != nil {
		a.mu.Unlock()
		return domain.Run{}, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.activeRunID = runID
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	// Open the device before spawning the worker so availability failures
	// report to the caller of start. The run context aborts a handshake in
	// flight when the operator stops during Starting.
	source, err := a.openSource(ctx, cfg)
	if err != nil {
		stopped := ctx.Err() != nil
		a.clearActiveRun(runID)
		if stopped {
			_ = a.Supervisor.Transition(domain.RunStatusCompleted)
			a.publishStatus(runID, domain.RunStatusCompleted, "Acquisition stopped before the device opened")
			return a.Supervisor.Current(), nil
		}
		_ = a.Supervisor.Transition(domain.RunStatusFailed)
		a.publishEntry(jobs.Entry{
			RunID:   runID,
			Type:    jobs.EntryTypeError,
			Status:  domain.RunStatusFailed,
			Message: err.Error(),
		})
		return domain.Run{}, err
	}

	a.publishStatus(runID, domain.RunStatusStarting, "Acquisition starting")
	a.log.Info().Str("run_id", runID).Str("device", cfg.DeviceAddress).Msg("acquisition starting")

	go a.runAcquisition(ctx, runID, cfg, source)
	return a.Supervisor.Current(), nil
}

// StopAcquisition requests cooperative cancellation of the active run. It is
// idempotent: stopping with no active run is a no-op. It returns before the
// worker has necessarily exited; status reflects eventual consistency.
func (a *App) StopAcquisition() error {
	a.mu.Lock()
	cancel := a.cancel
	activeRunID := a.activeRunID
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}

	if err := a.Supervisor.RequestStop(); err != nil && !errors.Is(err, jobs.ErrNoActiveRun) {
		return err
	}
	cancel()

	if activeRunID != "" {
		a.publishStatus(activeRunID, domain.RunStatusStopping, "Stop requested")
	}
	return nil
}

// CurrentRun returns current run metadata and status.
func (a *App) CurrentRun() domain.Run {
	return a.Supervisor.Current()
}

// FeedSince returns all feed entries with sequence greater than sinceSeq.
func (a *App) FeedSince(sinceSeq int64) []jobs.Entry {
	return a.feed.Since(sinceSeq)
}

// FeedTail returns the most recent n feed entries in append order.
func (a *App) FeedTail(n int) []jobs.Entry {
	return a.feed.Tail(n)
}

// LatestCapturePath returns the most recently finalized capture file, or an
// empty string if no run has finalized yet.
func (a *App) LatestCapturePath() string {
	path, ok := a.Registry.Current()
	if !ok {
		return ""
	}
	return path
}

// FirstWaveforms returns up to n earliest events of the latest capture.
func (a *App) FirstWaveforms(n int) ([]domain.Event, error) {
	return a.query().First(n)
}

// LastWaveform returns the latest event of the latest capture.
func (a *App) LastWaveform() (domain.Event, error) {
	return a.query().Last()
}

// WaveformSpectrum returns the frequency spectrum of one event's samples.
func (a *App) WaveformSpectrum(eventIndex int) (waveform.Spectrum, error) {
	return a.query().Spectrum(eventIndex)
}

// OpenOutputFolder opens the given path (or configured output dir) in the
// platform file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runAcquisition executes the runner and maps outcomes to run transitions
// and feed entries.
func (a *App) runAcquisition(ctx context.Context, runID string, cfg domain.AcquisitionConfig, source daq.Source) {
	req := daq.Request{
		Config: cfg,
		Source: source,
		OnStatus: func(status domain.RunStatus) {
			if err := a.Supervisor.Transition(status); err == nil {
				a.publishStatus(runID, status, "Acquisition running")
			}
		},
		OnLog: func(line string) {
			a.log.Info().Str("run_id", runID).Msg(line)
			a.publishEntry(jobs.Entry{
				RunID:   runID,
				Type:    jobs.EntryTypeLog,
				Message: line,
			})
		},
		OnFileFinalized: func(path string, events int) {
			a.Registry.Publish(path)
			a.publishEntry(jobs.Entry{
				RunID:      runID,
				Type:       jobs.EntryTypeFile,
				Message:    "Capture file finalized",
				Path:       path,
				EventCount: events,
			})
		},
	}

	result, err := a.Runner.Run(ctx, req)
	if err != nil {
		a.log.Error().Err(err).Str("run_id", runID).Msg("acquisition failed")
		_ = a.Supervisor.Transition(domain.RunStatusFailed)
		a.publishEntry(jobs.Entry{
			RunID:   runID,
			Type:    jobs.EntryTypeError,
			Status:  domain.RunStatusFailed,
			Message: err.Error(),
		})
		a.clearActiveRun(runID)
		return
	}

	if err := a.Supervisor.Transition(domain.RunStatusCompleted); err == nil {
		a.publishEntry(jobs.Entry{
			RunID:      runID,
			Type:       jobs.EntryTypeStatus,
			Status:     domain.RunStatusCompleted,
			Message:    fmt.Sprintf("Acquisition completed, %d events", result.Events),
			EventCount: result.Events,
		})
	}
	a.log.Info().Str("run_id", runID).Int("events", result.Events).Msg("acquisition completed")
	a.clearActiveRun(runID)
}

// query builds a waveform query over the latest capture with the current
// sampling grid.
func (a *App) query() *waveform.Query {
	a.mu.Lock()
	period := a.Settings.SamplePeriodNs
	a.mu.Unlock()
	return waveform.NewQuery(a.Registry, period)
}

// publishStatus sends a normalized status entry.
func (a *App) publishStatus(runID string, status domain.RunStatus, message string) {
	a.publishEntry(jobs.Entry{
		RunID:   runID,
		Type:    jobs.EntryTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEntry stores feed history and emits runtime push notifications.
// The push is fire-and-forget fan-out; it never blocks the worker.
func (a *App) publishEntry(entry jobs.Entry) {
	published := a.feed.Publish(entry)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, feedEventName, published)
	}
}

// clearActiveRun releases the run context and clears cancellation handles
// for a finished run.
func (a *App) clearActiveRun(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeRunID == runID {
		if a.cancel != nil {
			a.cancel()
		}
		a.activeRunID = ""
		a.cancel = nil
	}
}

// buildConfig merges persisted settings with per-run overrides.
func buildConfig(settings domain.Settings, req StartRequest) domain.AcquisitionConfig {
	fileBase := strings.TrimSpace(req.FileBase)
	if fileBase == "" {
		fileBase = settings.FileBase
	}

	return domain.AcquisitionConfig{
		DeviceAddress:     settings.DeviceAddress,
		ActiveChannels:    settings.ActiveChannels,
		RecordLength:      settings.RecordLength,
		PreTrigger:        settings.PreTrigger,
		DCOffsetPct:       settings.DCOffsetPct,
		TriggerSource:     settings.TriggerSource,
		SoftwareTriggerHz: settings.SoftwareTriggerHz,
		SamplePeriodNs:    settings.SamplePeriodNs,
		OutputDir:         settings.OutputDir,
		FileBase:          fileBase,
		MaxEvents:         req.MaxEvents,
		MaxDuration:       time.Duration(req.MaxDurationSec) * time.Second,
		MaxFileBytes:      int64(settings.MaxFileSizeMB) * 1024 * 1024,
		LogEvery:          settings.LogEveryEvents,
	}
}

// validateConfig checks the fields a run cannot proceed without. The output
// directory is created here so a typo fails the start call, not the worker.
func validateConfig(cfg domain.AcquisitionConfig) error {
	if strings.TrimSpace(cfg.DeviceAddress) == "" {
		return fmt.Errorf("%w: device address is empty", ErrInvalidConfig)
	}
	if u, err := url.Parse(cfg.DeviceAddress); err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: device address %q is not a URI", ErrInvalidConfig, cfg.DeviceAddress)
	}
	if strings.TrimSpace(cfg.FileBase) == "" {
		return fmt.Errorf("%w: output file base is empty", ErrInvalidConfig)
	}
	if cfg.RecordLength <= 0 {
		return fmt.Errorf("%w: record length must be positive", ErrInvalidConfig)
	}
	if cfg.PreTrigger < 0 || cfg.PreTrigger >= cfg.RecordLength {
		return fmt.Errorf("%w: pre-trigger must lie inside the record", ErrInvalidConfig)
	}
	if cfg.MaxEvents < 0 || cfg.MaxDuration < 0 {
		return fmt.Errorf("%w: bounds must be non-negative", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return fmt.Errorf("%w: output directory is empty", ErrInvalidConfig)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create output directory %s: %v", ErrInvalidConfig, cfg.OutputDir, err)
	}
	return nil
}

// normalizeSettings trims user inputs and applies defaults for blank fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.DeviceAddress = strings.TrimSpace(settings.DeviceAddress)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FileBase = strings.TrimSpace(settings.FileBase)
	settings.DCOffsetPct = strings.TrimSpace(settings.DCOffsetPct)
	settings.TriggerSource = strings.TrimSpace(settings.TriggerSource)
	if settings.FileBase == "" {
		settings.FileBase = "scope"
	}
	if settings.TriggerSource == "" {
		settings.TriggerSource = "TrgIn"
	}
	if settings.SamplePeriodNs <= 0 {
		settings.SamplePeriodNs = 8
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
