//go:build integration

package at24cxx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom/i2c"
)

// Uses a real part on EEPROM_I2C_DEVICE (default /dev/i2c-1) at 0x50 and
// overwrites 100 bytes starting at 0x0F10.
func TestHardware_RoundTrip(t *testing.T) {
	dev := os.Getenv("EEPROM_I2C_DEVICE")
	if dev == "" {
		dev = "/dev/i2c-1"
	}
	bus, err := i2c.NewGenericBus(dev)
	if err != nil {
		t.Skipf("no bus available: %v", err)
	}
	defer func() { _ = bus.Close() }()

	d := NewChip(AT24C32, WithLogger(discard))
	d.Begin(0x50, i2c.NewWire(bus))
	if !d.PollReady() {
		t.Skipf("no device at 0x50: %v", d.Err())
	}

	data := pattern(100)
	n, err := d.WriteAt(0x0F10, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	out := make([]byte, len(data))
	n, err = d.ReadAt(0x0F10, out)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, out)
}
