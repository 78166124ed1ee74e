package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdemu/cdemu-sub002/internal/mirage/memimage"
	"github.com/cdemu/cdemu-sub002/internal/mmc"
)

func newTestDevice(t *testing.T) (*Device, *capturedCallbacks) {
	t.Helper()
	cb := &capturedCallbacks{}
	d := New(memimage.NewContext(), memimage.NewWriter(), nil, cb.callbacks())
	require.NoError(t, d.Initialize(0, "none", 0, 0))
	return d, cb
}

type capturedCallbacks struct {
	statusChanges int
	optionChanges []string
}

func (c *capturedCallbacks) callbacks() Callbacks {
	return Callbacks{
		StatusChanged: func() { c.statusChanges++ },
		OptionChanged: func(name string) { c.optionChanges = append(c.optionChanges, name) },
	}
}

func TestInitializeSetsDefaultIdentityAndAppliesDebugMasks(t *testing.T) {
	d, _ := newTestDevice(t)

	serial, err := d.GetOption(OptionDeviceSerial)
	require.NoError(t, err)
	require.Equal(t, "CDEMU0", serial)

	mask, err := d.GetOption(OptionDaemonDebugMask)
	require.NoError(t, err)
	require.Equal(t, uint32(0), mask)
}

func TestLoadDiscSetsProfileAndMediumLoaded(t *testing.T) {
	d, cb := newTestDevice(t)

	loaded, _ := d.Status()
	require.False(t, loaded)

	err := d.LoadDisc([]string{"image.iso"}, nil)
	require.NoError(t, err)

	loaded, filename := d.Status()
	require.True(t, loaded)
	require.Equal(t, "image.iso", filename)
	require.Equal(t, 1, cb.statusChanges)

	require.Equal(t, mmc.ProfileCDROM, d.ctx.Profile)
	require.Equal(t, mmc.MediaEventNewMedia, d.ctx.MediaEvent)
	require.NotNil(t, d.ctx.DPM)
}

func TestLoadDiscRejectsSecondLoad(t *testing.T) {
	d, _ := newTestDevice(t)
	require.NoError(t, d.LoadDisc([]string{"a.iso"}, nil))

	err := d.LoadDisc([]string{"b.iso"}, nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, AlreadyLoaded, kind)
}

func TestLoadDiscRejectsEmptyFilenames(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.LoadDisc(nil, nil)
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, InvalidArgument, kind)
}

func TestCreateBlankDiscDefaultsToCDR80(t *testing.T) {
	d, _ := newTestDevice(t)

	err := d.CreateBlankDisc("blank.iso", nil)
	require.NoError(t, err)

	loaded, filename := d.Status()
	require.True(t, loaded)
	require.Equal(t, "blank.iso", filename)
	require.Equal(t, mmc.ProfileCDR, d.ctx.Profile)
	require.Equal(t, mmc.RecordingModeTAO, d.ctx.RecordingMode)
	require.NotNil(t, d.ctx.Recording)
	require.False(t, d.ctx.DiscClosed)
}

func TestCreateBlankDiscRejectsUnknownMediumType(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.CreateBlankDisc("blank.iso", map[string]any{"medium-type": "bluray"})
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, InvalidArgument, kind)
}

func TestUnloadDiscFailsWhenLockedWithoutForce(t *testing.T) {
	d, _ := newTestDevice(t)
	require.NoError(t, d.LoadDisc([]string{"a.iso"}, nil))
	d.ctx.Locked = true

	err := d.UnloadDisc(false)
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, DeviceLocked, kind)
	require.Equal(t, mmc.MediaEventEjectRequest, d.ctx.MediaEvent)

	loaded, _ := d.Status()
	require.True(t, loaded)
}

func TestUnloadDiscSucceedsWhenForced(t *testing.T) {
	d, cb := newTestDevice(t)
	require.NoError(t, d.LoadDisc([]string{"a.iso"}, nil))
	d.ctx.Locked = true

	err := d.UnloadDisc(true)
	require.NoError(t, err)

	loaded, _ := d.Status()
	require.False(t, loaded)
	require.Equal(t, mmc.MediaEventRemoval, d.ctx.MediaEvent)
	require.Equal(t, mmc.ProfileNone, d.ctx.Profile)
	require.Equal(t, 2, cb.statusChanges) // load + unload
}

func TestUnloadDiscOnEmptyDeviceIsNoop(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.UnloadDisc(false)
	require.NoError(t, err)
	require.Equal(t, mmc.MediaEventEjectRequest, d.ctx.MediaEvent)
}

func TestSetOptionRoundTripsBooleans(t *testing.T) {
	d, cb := newTestDevice(t)

	require.NoError(t, d.SetOption(OptionBadSectorEmulation, true))
	v, err := d.GetOption(OptionBadSectorEmulation)
	require.NoError(t, err)
	require.Equal(t, true, v)
	require.True(t, d.ctx.BadSectorEmulation)
	require.Contains(t, cb.optionChanges, OptionBadSectorEmulation)
}

func TestSetOptionRejectsWrongType(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.SetOption(OptionDPMEmulation, "yes")
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, InvalidArgument, kind)
}

func TestSetOptionDeviceIDRoundTrips(t *testing.T) {
	d, _ := newTestDevice(t)

	id := DeviceID{Vendor: "ACME", Product: "SuperDrive", Revision: "2.0", VendorSpecific: "extra"}
	require.NoError(t, d.SetOption(OptionDeviceID, id))

	got, err := d.GetOption(OptionDeviceID)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestGetOptionUnknownNameFails(t *testing.T) {
	d, _ := newTestDevice(t)
	_, err := d.GetOption("not-a-real-option")
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, InvalidArgument, kind)
}
