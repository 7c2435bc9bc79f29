package config

import (
	"os"
	"path/filepath"

	"daq-console/internal/domain"
)

// DefaultSettings returns baseline digitizer configuration for first launch.
// The sampling grid and record geometry default to the scope firmware's
// values; the simulated driver is selected until a hardware address is set.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		DeviceAddress:     "sim://bench",
		OutputDir:         filepath.Join(homeDir, "daq-data"),
		FileBase:          "scope",
		ActiveChannels:    1,
		RecordLength:      4084,
		PreTrigger:        2042,
		DCOffsetPct:       "10",
		TriggerSource:     "TrgIn",
		SoftwareTriggerHz: 1000,
		SamplePeriodNs:    8,
		MaxFileSizeMB:     100,
		LogEveryEvents:    100,
	}
}
