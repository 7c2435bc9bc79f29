package diagnostics

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"daq-console/internal/daq"
	"daq-console/internal/domain"
)

// Checker validates the device address, output location, and record
// geometry before a run can be started.
type Checker struct {
	schemes    func() []string
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS and driver dependencies.
func NewChecker() *Checker {
	return &Checker{
		schemes:    daq.Schemes,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkDeviceAddress(settings.DeviceAddress),
		c.checkOutputDir(settings.OutputDir),
		c.checkRecordGeometry(settings.RecordLength, settings.PreTrigger),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkDeviceAddress verifies the address parses and names a registered
// driver scheme.
func (c *Checker) checkDeviceAddress(address string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "device_address",
		Name: "Device address",
	}

	if strings.TrimSpace(address) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Device address is empty."
		item.Hint = "Set a digitizer address such as dig2://caendgtz-usb-52696 or sim://bench."
		return item
	}

	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Device address is not a valid URI: %s", address)
		item.Hint = "Use scheme://authority form."
		return item
	}

	for _, scheme := range c.schemes() {
		if scheme == u.Scheme {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Driver registered for scheme %q", u.Scheme)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No driver registered for scheme %q", u.Scheme)
	item.Hint = fmt.Sprintf("Available schemes: %s. Link the hardware driver or use the simulated source.", strings.Join(c.schemes(), ", "))
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set a directory where capture files can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for capture files."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// checkRecordGeometry validates record length against pre-trigger position.
func (c *Checker) checkRecordGeometry(recordLength, preTrigger int) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "record_geometry",
		Name: "Record geometry",
	}

	switch {
	case recordLength <= 0:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Record length must be positive, got %d.", recordLength)
	case preTrigger < 0 || preTrigger >= recordLength:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Pre-trigger %d must lie inside the %d-sample record.", preTrigger, recordLength)
		item.Hint = "Pre-trigger is the sample index inside the record where the trigger fires."
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("%d samples, trigger at %d", recordLength, preTrigger)
	}
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	schemes func() []string,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		schemes:    schemes,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
