package daq

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"daq-console/internal/domain"
)

// SimScheme is the device address scheme of the built-in simulated driver,
// e.g. sim://bench.
const SimScheme = "sim"

func init() {
	Register(SimScheme, openSim)
}

// simSource software-triggers synthetic pulse waveforms at a fixed rate.
// It stands in for a digitizer on benches without hardware attached and
// exercises the full acquisition path.
type simSource struct {
	cfg      domain.AcquisitionConfig
	rng      *rand.Rand
	interval time.Duration
	baseline float64
	started  time.Time
	triggers uint64
	channel  int
}

func openSim(_ context.Context, cfg domain.AcquisitionConfig) (Source, error) {
	rate := cfg.SoftwareTriggerHz
	if rate <= 0 {
		rate = 1000
	}

	return &simSource{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		interval: time.Second / time.Duration(rate),
		baseline: dcOffsetBaseline(cfg.DCOffsetPct),
		started:  time.Now(),
	}, nil
}

// Next waits one software-trigger interval and emits the next channel's
// waveform. Channels are cycled round-robin; one full cycle corresponds to
// one trigger.
func (s *simSource) Next(ctx context.Context) (domain.Event, error) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.Event{}, ctx.Err()
	case <-timer.C:
	}

	event := domain.Event{
		Timestamp: uint64(time.Since(s.started).Nanoseconds()),
		Channel:   uint16(s.channel),
		Samples:   s.waveform(),
	}

	channels := s.cfg.ActiveChannels
	if channels <= 0 {
		channels = 1
	}
	s.channel++
	if s.channel >= channels {
		s.channel = 0
		s.triggers++
	}

	return event, nil
}

// Close has nothing to release for the simulated driver.
func (s *simSource) Close() error {
	return nil
}

// waveform builds a noisy exponential pulse rising at the pre-trigger
// position, in ADC counts.
func (s *simSource) waveform() []uint16 {
	length := s.cfg.RecordLength
	if length <= 0 {
		length = 4084
	}
	rise := s.cfg.PreTrigger
	if rise <= 0 || rise >= length {
		rise = length / 2
	}

	amplitude := 2000 + s.rng.Float64()*6000
	decay := float64(length-rise) / 5
	samples := make([]uint16, length)
	for i := range samples {
		v := s.baseline + s.rng.NormFloat64()*12
		if i >= rise {
			v += amplitude * math.Exp(-float64(i-rise)/decay)
		}
		if v < 0 {
			v = 0
		}
		if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		samples[i] = uint16(v)
	}
	return samples
}

// dcOffsetBaseline maps a DC offset percentage to a 16-bit baseline level.
func dcOffsetBaseline(pct string) float64 {
	p, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
	if err != nil || p < 0 || p > 100 {
		p = 10
	}
	return p / 100 * math.MaxUint16
}
