package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := ParseFlags(fs, args)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsMatchRTLTCPConventions(t *testing.T) {
	cfg := parse(t)
	assert.Equal(t, "0.0.0.0", cfg.Addr)
	assert.Equal(t, 1234, cfg.Port)
	assert.Equal(t, 8, cfg.BitWidth)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg := parse(t, "-a", "127.0.0.1", "-p", "1235", "-f", "144500000", "-P", "12")
	assert.Equal(t, "127.0.0.1", cfg.Addr)
	assert.Equal(t, 1235, cfg.Port)
	assert.Equal(t, uint32(144500000), cfg.FrequencyHz)
	assert.Equal(t, int32(12), cfg.PPM)
}

func TestUnsupportedBitWidthRejected(t *testing.T) {
	_, err := ParseFlags(pflag.NewFlagSet("test", pflag.ContinueOnError), []string{"-W", "12"})
	assert.Error(t, err)
}

func TestYAMLOverlayAppliesAfterFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frequency_hz: 433000000\nqueue_depth: 128\n"), 0o644))

	cfg := parse(t, "-p", "1235", "-c", path)
	assert.Equal(t, uint32(433000000), cfg.FrequencyHz)
	assert.Equal(t, 128, cfg.QueueDepth)
	// The overlay file doesn't mention port, so the flag value survives
	// only if the overlay doesn't zero it; yaml.Unmarshal leaves fields
	// absent from the document untouched.
	assert.Equal(t, 1235, cfg.Port)
}

func TestDeprecatedDeviceAliasSetsDeviceIndex(t *testing.T) {
	cfg := parse(t, "-d", "2")
	assert.Equal(t, 2, cfg.DeviceIndex)
}

func TestRegisterAddrDefaultsToPortPlusOne(t *testing.T) {
	cfg := parse(t, "-a", "127.0.0.1", "-p", "1234")
	assert.Equal(t, "127.0.0.1:1235", cfg.RegisterAddr())
}

func TestRegisterAddrHonorsExplicitPort(t *testing.T) {
	cfg := parse(t, "-a", "127.0.0.1", "-p", "1234", "--register-port", "9000")
	assert.Equal(t, "127.0.0.1:9000", cfg.RegisterAddr())
}
