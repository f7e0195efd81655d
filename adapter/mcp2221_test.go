package adapter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/memory/at24cxx"
	"github.com/mklimuk/eeprom/memory/at24cxx/sim"
)

// scriptedBridge answers HID reports in place of a real bridge. Status
// requests report the next engine state from states; the last one repeats.
type scriptedBridge struct {
	d         *MCP2221
	writeResp []byte
	states    []byte
	statuses  int
	cancels   int
}

func newScriptedBridge(states ...byte) *scriptedBridge {
	b := &scriptedBridge{d: NewMCP2221(), states: states}
	b.d.exchange = b.exchange
	return b
}

func (b *scriptedBridge) exchange(ctx context.Context) error {
	req, resp := b.d.request, b.d.response
	resp[0] = req[0]
	switch req[0] {
	case cmdWriteData:
		copy(resp[1:], b.writeResp)
	case cmdStatus:
		if req[2] == 0x10 {
			b.cancels++
			return nil
		}
		b.statuses++
		if len(b.states) > 0 {
			resp[8] = b.states[0]
			if len(b.states) > 1 {
				b.states = b.states[1:]
			}
		}
	}
	return nil
}

func TestBufferToStatus(t *testing.T) {
	buf := make([]byte, 64)
	buf[9], buf[10] = 0x20, 0x00
	buf[11], buf[12] = 0x1E, 0x00
	buf[13] = 3
	buf[14] = 0x76
	buf[15] = 7
	buf[16], buf[17] = 0xA0, 0x00
	buf[25] = 1
	buf[8] = i2cStateAddrNack

	status := bufferToStatus(buf)
	assert.Equal(t, &MCP2221Status{
		I2CState:               0x25,
		I2CDataBufferCounter:   3,
		I2CSpeedDivider:        0x76,
		I2CTimeout:             7,
		CurrentAddress:         "a000",
		LastWriteRequestedSize: 32,
		LastWriteSentSize:      30,
		ReadPending:            1,
	}, status)
}

func TestMCP2221_Options(t *testing.T) {
	d := NewMCP2221()
	assert.Equal(t, 50*time.Millisecond, d.config.ResponseWait)
	assert.Equal(t, -1, d.config.DeviceIndex)

	d = NewMCP2221(WithResponseWait(5*time.Millisecond), WithDeviceIndex(1))
	assert.Equal(t, 5*time.Millisecond, d.config.ResponseWait)
	assert.Equal(t, 1, d.config.DeviceIndex)
}

func TestMCP2221_RejectsOversizedTransfers(t *testing.T) {
	d := NewMCP2221()
	err := d.WriteToAddr(context.Background(), 0x50, make([]byte, maxWritePayload+1))
	assert.ErrorIs(t, err, eeprom.ErrDataTooLong)
	err = d.ReadFromAddr(context.Background(), 0x50, make([]byte, maxWritePayload+1))
	assert.ErrorIs(t, err, eeprom.ErrDataTooLong)
}

func TestResetBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	resetBuffer(buf)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestI2CStateErr(t *testing.T) {
	tests := []struct {
		state    byte
		expected error
	}{
		{i2cStateIdle, nil},
		{i2cStateAddrSend, nil},
		{i2cStateAddrNack, eeprom.ErrNack},
		{i2cStateAddrTimeout, eeprom.ErrBusFault},
		{i2cStateStartTimeout, eeprom.ErrBusFault},
		{i2cStateWriteTimeout, eeprom.ErrBusFault},
		{i2cStateStopTimeout, eeprom.ErrBusFault},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#x", test.state), func(t *testing.T) {
			err := i2cStateErr(test.state)
			if test.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, test.expected)
		})
	}
}

func TestMCP2221_WriteChecksEngineState(t *testing.T) {
	ctx := context.Background()

	t.Run("acknowledged", func(t *testing.T) {
		b := newScriptedBridge(i2cStateIdle)
		assert.NoError(t, b.d.WriteToAddr(ctx, 0x50, nil))
		assert.Equal(t, 1, b.statuses)
		assert.Zero(t, b.cancels)
	})
	t.Run("address not acknowledged", func(t *testing.T) {
		b := newScriptedBridge(i2cStateAddrNack)
		err := b.d.WriteToAddr(ctx, 0x50, nil)
		assert.ErrorIs(t, err, eeprom.ErrNack)
		assert.Equal(t, 1, b.cancels)
	})
	t.Run("waits for the transfer to leave the wire", func(t *testing.T) {
		b := newScriptedBridge(i2cStateAddrSend, i2cStatePartialData, i2cStateIdle)
		assert.NoError(t, b.d.WriteToAddr(ctx, 0x50, []byte{0x00, 0x10, 0xAA}))
		assert.Equal(t, 3, b.statuses)
	})
	t.Run("address timeout", func(t *testing.T) {
		b := newScriptedBridge(i2cStateAddrTimeout)
		assert.ErrorIs(t, b.d.WriteToAddr(ctx, 0x50, nil), eeprom.ErrBusFault)
		assert.Equal(t, 1, b.cancels)
	})
	t.Run("nack reported with the write response", func(t *testing.T) {
		b := newScriptedBridge()
		b.writeResp = []byte{0x01, i2cStateAddrNack}
		assert.ErrorIs(t, b.d.WriteToAddr(ctx, 0x50, nil), eeprom.ErrNack)
		assert.Zero(t, b.statuses)
		assert.Equal(t, 1, b.cancels)
	})
	t.Run("busy", func(t *testing.T) {
		b := newScriptedBridge()
		b.writeResp = []byte{0x01, 0x00}
		assert.ErrorIs(t, b.d.WriteToAddr(ctx, 0x50, nil), eeprom.ErrBusBusy)
	})
}

func TestMCP2221_PollReadyOnMissingPart(t *testing.T) {
	b := newScriptedBridge(i2cStateAddrNack)
	wire := i2c.NewWire(b.d)
	wire.BeginTransmission(0x50)
	assert.Equal(t, eeprom.StatusAddrNack, wire.EndTransmission())

	dev := at24cxx.New(32, at24cxx.WithClock(sim.NewManualClock(time.Millisecond)))
	dev.Begin(0x50, wire)
	require.False(t, dev.PollReady())
	assert.ErrorIs(t, dev.Err(), at24cxx.ErrNotReady)
}
