package domain

import "time"

// RunStatus tracks the lifecycle stage of a single acquisition run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusStarting  RunStatus = "starting"
	RunStatusRunning   RunStatus = "running"
	RunStatusStopping  RunStatus = "stopping"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Active reports whether the status occupies the single process-wide run slot.
func (s RunStatus) Active() bool {
	switch s {
	case RunStatusStarting, RunStatusRunning, RunStatusStopping:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is an end state of the run machine.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Settings contains operator-selectable digitizer and output configuration.
type Settings struct {
	DeviceAddress     string  `json:"deviceAddress"`
	OutputDir         string  `json:"outputDir"`
	FileBase          string  `json:"fileBase"`
	ActiveChannels    int     `json:"activeChannels"`
	RecordLength      int     `json:"recordLength"`
	PreTrigger        int     `json:"preTrigger"`
	DCOffsetPct       string  `json:"dcOffsetPct"`
	TriggerSource     string  `json:"triggerSource"`
	SoftwareTriggerHz int     `json:"softwareTriggerHz"`
	SamplePeriodNs    float64 `json:"samplePeriodNs"`
	MaxFileSizeMB     int     `json:"maxFileSizeMB"`
	LogEveryEvents    int     `json:"logEveryEvents"`
}

// AcquisitionConfig is the immutable per-run configuration. It is built from
// Settings plus per-run bounds, validated once at run creation, and passed
// through to the source driver unmodified.
type AcquisitionConfig struct {
	DeviceAddress     string        `json:"deviceAddress"`
	ActiveChannels    int           `json:"activeChannels"`
	RecordLength      int           `json:"recordLength"`
	PreTrigger        int           `json:"preTrigger"`
	DCOffsetPct       string        `json:"dcOffsetPct"`
	TriggerSource     string        `json:"triggerSource"`
	SoftwareTriggerHz int           `json:"softwareTriggerHz"`
	SamplePeriodNs    float64       `json:"samplePeriodNs"`
	OutputDir         string        `json:"outputDir"`
	FileBase          string        `json:"fileBase"`
	MaxEvents         int           `json:"maxEvents,omitempty"`
	MaxDuration       time.Duration `json:"maxDuration,omitempty"`
	MaxFileBytes      int64         `json:"maxFileBytes"`
	LogEvery          int           `json:"logEvery"`
}

// Run stores the identity and lifecycle status of one acquisition run.
type Run struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	OutputBase string    `json:"outputBase,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// Event is one digitizer trigger's captured sample buffer plus metadata.
// Events are never mutated after creation.
type Event struct {
	Timestamp uint64   `json:"timestamp"`
	Channel   uint16   `json:"channel"`
	Samples   []uint16 `json:"samples"`
}
