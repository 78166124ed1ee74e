package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdemu/cdemu-sub002/internal/kernelio"
)

func TestLookupMappingInModernSysfsLayout(t *testing.T) {
	dir := t.TempDir()

	blockDir := filepath.Join(dir, "block")
	require.NoError(t, os.Mkdir(blockDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blockDir, "sr0"), nil, 0o644))

	require.NoError(t, os.Symlink("../../../class/scsi_generic/sg0", filepath.Join(dir, "generic")))

	sr, sg := lookupMappingIn(dir)
	require.Equal(t, "/dev/sr0", sr)
	require.Equal(t, "/dev/sg0", sg)
}

func TestLookupMappingInLegacySysfsLayout(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "block:sr0"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scsi_generic:sg0"), nil, 0o644))

	sr, sg := lookupMappingIn(dir)
	require.Equal(t, "/dev/sr0", sr)
	require.Equal(t, "/dev/sg0", sg)
}

func TestLookupMappingInMissingDirReturnsEmpty(t *testing.T) {
	sr, sg := lookupMappingIn(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Empty(t, sr)
	require.Empty(t, sg)
}

func TestScsiAddressDirFormatting(t *testing.T) {
	require.Equal(t, "2:0:1:0", scsiAddressDir(kernelio.ScsiAddress{Host: 2, Channel: 0, Target: 1, LUN: 0}))
}
