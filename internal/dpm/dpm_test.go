package dpm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	angle, density float64
	ok             bool
}

func (f fakeSource) DPMDataForSector(address int) (float64, float64, bool) {
	return f.angle, f.density, f.ok
}

type fakeClock struct {
	now    time.Time
	slept  time.Duration
	ticked bool
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept += d
	c.ticked = true
	c.now = c.now.Add(d)
}

func TestIncreaseNoOpWithoutDPMData(t *testing.T) {
	m := New(fakeSource{ok: false}, &fakeClock{now: time.Unix(0, 0)})
	m.Begin(100, 10)
	require.Zero(t, m.delayAmount)
}

func TestSeekUnderTenRotationsNoHeadJump(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := New(fakeSource{angle: 5, density: 20, ok: true}, clock)
	m.SetOptions(true, false)
	m.Begin(0, 1)

	require.InDelta(t, 5.0/rotationsPerSecond*float64(time.Second), float64(m.delayAmount), float64(time.Microsecond))
}

func TestSeekOverTenRotationsAddsHeadJump(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := New(fakeSource{angle: 25, density: 20, ok: true}, clock)
	m.SetOptions(true, false)
	m.Begin(0, 1)

	// 25 rotations -> two head jumps (40ms) leaving 5 rotations worth of seek time
	require.GreaterOrEqual(t, m.delayAmount, 40*time.Millisecond)
}

func TestTransferComponentScalesWithSectorCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := New(fakeSource{angle: 0, density: 20, ok: true}, clock)
	m.SetOptions(false, true)
	m.Begin(0, 100)
	small := m.delayAmount

	clock2 := &fakeClock{now: time.Unix(0, 0)}
	m2 := New(fakeSource{angle: 0, density: 20, ok: true}, clock2)
	m2.SetOptions(false, true)
	m2.Begin(0, 200)

	require.Greater(t, m2.delayAmount, small)
}

func TestFinalizeSleepsRemainingTime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := New(fakeSource{angle: 0, density: 20, ok: true}, clock)
	m.SetOptions(true, false)
	m.delayAmount = 50 * time.Millisecond
	m.delayBegin = clock.now
	clock.now = clock.now.Add(10 * time.Millisecond)

	slept := m.Finalize()
	require.Equal(t, 40*time.Millisecond, slept)
	require.True(t, clock.ticked)
}

func TestFinalizeSkipsWhenProcessingExceedsDelay(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := New(fakeSource{ok: false}, clock)
	m.delayAmount = 10 * time.Millisecond
	m.delayBegin = clock.now
	clock.now = clock.now.Add(50 * time.Millisecond)

	slept := m.Finalize()
	require.Zero(t, slept)
	require.False(t, clock.ticked)
}
