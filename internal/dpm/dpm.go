// Package dpm implements C6: the density-per-minute seek and transfer
// delay model used to make copy-protection checks that time READ(10)
// sequences believe they are talking to a real, non-uniform-density
// optical disc. Grounded on cdemu's device-delay.c; the only structural
// change is an injectable clock so the model is testable without
// sleeping.
package dpm

import "time"

// DataSource supplies the per-sector angular position and density the
// model needs; the disc image (via internal/mirage) is the real
// implementation. A sector with no DPM data makes Increase a no-op,
// matching cdemu's behavior when mirage_disc_get_dpm_data_for_sector
// fails.
type DataSource interface {
	DPMDataForSector(address int) (angle, density float64, ok bool)
}

// Clock abstracts the monotonic clock so tests can control elapsed
// time without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}

const rotationsPerSecond = 12000.0 / 60

// Model tracks the running delay for one in-progress read and the
// drive head's last known angular position, mirroring the per-device
// state cdemu keeps (current_angle, delay_amount, delay_begin).
type Model struct {
	source DataSource
	clock  Clock

	dpmEnabled      bool
	transferEnabled bool

	currentAngle float64
	delayAmount  time.Duration
	delayBegin   time.Time
}

// New returns a Model reading DPM data from source and using clock for
// timing. Both delay components default to enabled, matching cdemu's
// factory defaults; use SetOptions to change them (spec §6.3 options
// dpm_emulation / transfer_rate_emulation).
func New(source DataSource, clock Clock) *Model {
	if clock == nil {
		clock = RealClock
	}
	return &Model{source: source, clock: clock, dpmEnabled: true, transferEnabled: true}
}

// SetOptions toggles the two independent delay components (spec §6.3).
func (m *Model) SetOptions(dpmEnabled, transferEnabled bool) {
	m.dpmEnabled = dpmEnabled
	m.transferEnabled = transferEnabled
}

// Begin records the start time, resets the accumulated delay, and runs
// one Increase pass for the read about to start.
func (m *Model) Begin(address, numSectors int) {
	m.delayBegin = m.clock.Now()
	m.delayAmount = 0
	m.Increase(address, numSectors)
}

// Increase accumulates seek and/or transfer delay for a read of
// numSectors starting at address. A sector with no DPM data is a no-op.
func (m *Model) Increase(address, numSectors int) {
	angle, density, ok := m.source.DPMDataForSector(address)
	if !ok {
		return
	}

	if m.dpmEnabled {
		rotations := angle - m.currentAngle
		if rotations < 0 {
			rotations = -rotations
		}
		m.currentAngle = angle

		for rotations >= 10.0 {
			rotations -= 10.0
			m.delayAmount += 20 * time.Millisecond
		}
		m.delayAmount += time.Duration(rotations / rotationsPerSecond * float64(time.Second))
	}

	if m.transferEnabled && density != 0 {
		sectorsPerRotation := 360.0 / density
		sectorsPerSecond := sectorsPerRotation * rotationsPerSecond
		m.delayAmount += time.Duration(float64(numSectors) / sectorsPerSecond * float64(time.Second))
	}
}

// Finalize sleeps out whatever delay remains after subtracting the time
// already spent since Begin, then returns the duration actually slept
// (zero if the accumulated delay was already exceeded by processing
// time).
func (m *Model) Finalize() time.Duration {
	if m.delayAmount == 0 {
		return 0
	}
	elapsed := m.clock.Now().Sub(m.delayBegin)
	remaining := m.delayAmount - elapsed
	if remaining <= 0 {
		return 0
	}
	m.clock.Sleep(remaining)
	return remaining
}
