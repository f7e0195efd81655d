package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom"
)

func newPart(t *testing.T) (*EEPROM, *ManualClock) {
	t.Helper()
	clock := NewManualClock(0)
	return New(256, 32, WithClock(clock)), clock
}

func TestEEPROM_WriteWrapsWithinPage(t *testing.T) {
	e, _ := newPart(t)
	ctx := context.Background()

	require.NoError(t, e.WriteToAddr(ctx, DefaultAddress, []byte{0x00, 30, 1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2}, e.Bytes(30, 2))
	assert.Equal(t, []byte{3, 4}, e.Bytes(0, 2))
	assert.Equal(t, byte(0xFF), e.Bytes(32, 1)[0])
	assert.Len(t, e.Writes(), 1)
}

func TestEEPROM_WriteCycle(t *testing.T) {
	e, clock := newPart(t)
	ctx := context.Background()

	require.NoError(t, e.WriteToAddr(ctx, DefaultAddress, []byte{0x00, 0x00, 0xAA}))
	assert.ErrorIs(t, e.WriteToAddr(ctx, DefaultAddress, nil), eeprom.ErrNack)
	clock.Advance(4 * time.Millisecond)
	assert.ErrorIs(t, e.WriteToAddr(ctx, DefaultAddress, nil), eeprom.ErrNack)
	clock.Advance(time.Millisecond)
	assert.NoError(t, e.WriteToAddr(ctx, DefaultAddress, nil))

	probes := 0
	for _, tx := range e.Transactions() {
		if tx.Kind == TxProbe {
			probes++
		}
	}
	assert.Equal(t, 3, probes)
}

func TestEEPROM_Addressing(t *testing.T) {
	e, _ := newPart(t)
	ctx := context.Background()

	assert.ErrorIs(t, e.WriteToAddr(ctx, 0x51, nil), eeprom.ErrNack)
	assert.ErrorIs(t, e.WriteToAddr(ctx, DefaultAddress, []byte{0x00}), eeprom.ErrDataNack)
	_, err := e.ReadSomeFromAddr(ctx, 0x51, make([]byte, 1))
	assert.ErrorIs(t, err, eeprom.ErrNack)
}

func TestEEPROM_SequentialReadRollsOver(t *testing.T) {
	e, _ := newPart(t)
	ctx := context.Background()
	e.Load(254, []byte{0x10, 0x11})
	e.Load(0, []byte{0x12})

	require.NoError(t, e.WriteToAddr(ctx, DefaultAddress, []byte{0x00, 254}))
	buf := make([]byte, 3)
	require.NoError(t, e.ReadFromAddr(ctx, DefaultAddress, buf))
	assert.Equal(t, []byte{0x10, 0x11, 0x12}, buf)
}

func TestEEPROM_FaultInjection(t *testing.T) {
	ctx := context.Background()

	t.Run("stop after writes", func(t *testing.T) {
		e, clock := newPart(t)
		e.StopAfterWrites(1)
		require.NoError(t, e.WriteToAddr(ctx, DefaultAddress, []byte{0x00, 0x00, 0x01}))
		clock.Advance(10 * time.Millisecond)
		assert.ErrorIs(t, e.WriteToAddr(ctx, DefaultAddress, nil), eeprom.ErrNack)
		assert.ErrorIs(t, e.WriteToAddr(ctx, DefaultAddress, []byte{0x00, 0x01, 0x02}), eeprom.ErrNack)
		assert.Len(t, e.Writes(), 1)
	})
	t.Run("unresponsive", func(t *testing.T) {
		e, _ := newPart(t)
		e.SetUnresponsive(true)
		assert.ErrorIs(t, e.WriteToAddr(ctx, DefaultAddress, nil), eeprom.ErrNack)
		e.SetUnresponsive(false)
		assert.NoError(t, e.WriteToAddr(ctx, DefaultAddress, nil))
	})
	t.Run("limited reads", func(t *testing.T) {
		e, _ := newPart(t)
		e.LimitReads(2)
		n, err := e.ReadSomeFromAddr(ctx, DefaultAddress, make([]byte, 5))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Error(t, e.ReadFromAddr(ctx, DefaultAddress, make([]byte, 5)))
	})
}

func TestEEPROM_ResetLog(t *testing.T) {
	e, _ := newPart(t)
	require.NoError(t, e.WriteToAddr(context.Background(), DefaultAddress, nil))
	assert.Len(t, e.Transactions(), 1)
	e.ResetLog()
	assert.Empty(t, e.Transactions())
	assert.Equal(t, 256, e.Size())
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(2 * time.Millisecond)
	assert.Equal(t, int64(0), c.Millis())
	assert.Equal(t, int64(2), c.Millis())
	c.Sleep(1500 * time.Microsecond)
	assert.Equal(t, int64(6), c.Now())
	assert.Equal(t, int64(6), c.Now())
}
