// Package waveform answers read-only queries against the latest finalized
// capture file: first-n events, last event, and the frequency spectrum of a
// single event.
package waveform

import (
	"errors"
	"fmt"
	"io"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"daq-console/internal/capture"
	"daq-console/internal/domain"
)

// ErrNoCapture is returned when no run has ever finalized a capture file.
var ErrNoCapture = errors.New("no capture available")

// ErrEmptyCapture is returned when the latest capture contains no events.
var ErrEmptyCapture = errors.New("capture is empty")

// ErrEventIndex is returned when a spectrum is requested for an event index
// beyond the end of the capture.
var ErrEventIndex = errors.New("event index out of range")

// latestSource yields the path of the latest finalized capture file.
// capture.Registry is the production implementation.
type latestSource interface {
	Current() (string, bool)
}

// Spectrum is the discrete frequency-domain transform of one event,
// magnitude against frequency in Hz.
type Spectrum struct {
	EventIndex  int       `json:"eventIndex"`
	Channel     uint16    `json:"channel"`
	Frequencies []float64 `json:"frequencies"`
	Magnitudes  []float64 `json:"magnitudes"`
}

// Query reads the latest finalized capture. Queries are safe to run
// concurrently with a newer active run because the registry only ever hands
// out finalized paths.
type Query struct {
	latest         latestSource
	samplePeriodNs float64
}

// NewQuery creates a query bound to a latest-capture source. samplePeriodNs
// is the digitizer sampling grid used to scale spectrum frequencies.
func NewQuery(latest latestSource, samplePeriodNs float64) *Query {
	if samplePeriodNs <= 0 {
		samplePeriodNs = 8
	}
	return &Query{latest: latest, samplePeriodNs: samplePeriodNs}
}

// First returns up to n earliest events of the latest capture in file order.
func (q *Query) First(n int) ([]domain.Event, error) {
	if n <= 0 {
		return nil, nil
	}

	reader, err := q.open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	events := make([]domain.Event, 0, n)
	for len(events) < n {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Last returns the single latest event of the latest capture.
func (q *Query) Last() (domain.Event, error) {
	reader, err := q.open()
	if err != nil {
		return domain.Event{}, err
	}
	defer reader.Close()

	var last domain.Event
	found := false
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Event{}, err
		}
		last = event
		found = true
	}
	if !found {
		return domain.Event{}, ErrEmptyCapture
	}
	return last, nil
}

// Spectrum computes the real-input FFT of event eventIndex's samples.
func (q *Query) Spectrum(eventIndex int) (Spectrum, error) {
	if eventIndex < 0 {
		return Spectrum{}, fmt.Errorf("%w: %d", ErrEventIndex, eventIndex)
	}

	reader, err := q.open()
	if err != nil {
		return Spectrum{}, err
	}
	defer reader.Close()

	var event domain.Event
	for i := 0; ; i++ {
		next, err := reader.Next()
		if errors.Is(err, io.EOF) {
			if i == 0 {
				return Spectrum{}, ErrEmptyCapture
			}
			return Spectrum{}, fmt.Errorf("%w: %d", ErrEventIndex, eventIndex)
		}
		if err != nil {
			return Spectrum{}, err
		}
		if i == eventIndex {
			event = next
			break
		}
	}

	n := len(event.Samples)
	if n == 0 {
		return Spectrum{}, ErrEmptyCapture
	}

	samples := make([]float64, n)
	var mean float64
	for _, s := range event.Samples {
		mean += float64(s)
	}
	mean /= float64(n)
	for i, s := range event.Samples {
		samples[i] = float64(s) - mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, samples)

	sampleRateHz := 1e9 / q.samplePeriodNs
	spectrum := Spectrum{
		EventIndex:  eventIndex,
		Channel:     event.Channel,
		Frequencies: make([]float64, len(coeffs)),
		Magnitudes:  make([]float64, len(coeffs)),
	}
	for i, c := range coeffs {
		spectrum.Frequencies[i] = fft.Freq(i) * sampleRateHz
		spectrum.Magnitudes[i] = cmplx.Abs(c)
	}
	return spectrum, nil
}

// open resolves the latest finalized path and opens a reader on it.
func (q *Query) open() (*capture.Reader, error) {
	path, ok := q.latest.Current()
	if !ok {
		return nil, ErrNoCapture
	}
	return capture.OpenReader(path)
}
