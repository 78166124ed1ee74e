package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, "cdemu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadValidConfigResolvesImagePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "disc.iso"), nil, 0o644))

	path := writeConfig(t, dir, `
devices:
  - number: 0
    control_device: /dev/vhba_ctl0
    audio_driver: none
    image:
      - disc.iso
    options:
      bad-sector-emulation: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)

	d := cfg.Devices[0]
	require.Equal(t, 0, *d.Number)
	require.Equal(t, "/dev/vhba_ctl0", d.ControlDevice)
	require.Equal(t, filepath.Join(dir, "disc.iso"), d.Image[0])
	require.Equal(t, true, d.Options["bad-sector-emulation"])
}

func TestLoadRejectsMissingNumber(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
devices:
  - control_device: /dev/vhba_ctl0
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingControlDevice(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
devices:
  - number: 0
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateDeviceNumbers(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
devices:
  - number: 0
    control_device: /dev/vhba_ctl0
  - number: 0
    control_device: /dev/vhba_ctl1
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsImageOptionsWithoutImage(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
devices:
  - number: 0
    control_device: /dev/vhba_ctl0
    image_options:
      writer.speed: 4
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
devices:
  - number: 0
    control_device: /dev/vhba_ctl0
    bogus_field: true
`)
	_, err := Load(path)
	require.Error(t, err)
}
