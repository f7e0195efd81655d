// Package adapter provides USB bridges that expose an I2C bus to the host.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/busctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// maxWritePayload is the room for data in a 64 byte HID report after the 4 byte command header.
const maxWritePayload = 60

const (
	cmdStatus    = 0x10
	cmdWriteData = 0x90
	cmdReadData  = 0x91
	cmdGetData   = 0x40
)

// States of the bridge's I2C engine reported at offset 8 of a status response.
const (
	i2cStateIdle            = 0x00
	i2cStateStartTimeout    = 0x12
	i2cStateRepStartTimeout = 0x17
	i2cStateAddrSend        = 0x21
	i2cStateAddrTimeout     = 0x23
	i2cStateAddrNack        = 0x25
	i2cStatePartialData     = 0x41
	i2cStateWriteTimeout    = 0x44
	i2cStateReadTimeout     = 0x52
	i2cStateStopTimeout     = 0x62
)

// statusPolls bounds how often the engine state is read while a write is still on the wire.
const statusPolls = 10

var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var _ eeprom.I2CBus = &MCP2221{}

type MCP2221Status struct {
	I2CState               int    `yaml:"i2c_state"`
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Opts struct {
	ResponseWait time.Duration
	DeviceIndex  int
}

type MCP2221Opt func(*MCP2221Opts)

// WithResponseWait sets the pause between a command report and reading its response.
func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = d
	}
}

// WithDeviceIndex selects a bridge when several are attached; -1 requires exactly one.
func WithDeviceIndex(i int) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.DeviceIndex = i
	}
}

// MCP2221 is a Microchip MCP2221 USB-to-I2C bridge accessed through HID reports.
// Every call opens the HID device, exchanges one report pair and closes it.
type MCP2221 struct {
	mx       sync.Mutex
	config   MCP2221Opts
	request  []byte
	response []byte
	// exchange sends request and fills response
	exchange func(ctx context.Context) error
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		ResponseWait: 50 * time.Millisecond,
		DeviceIndex:  -1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	d := &MCP2221{
		config:   config,
		request:  make([]byte, 64),
		response: make([]byte, 64),
	}
	d.exchange = d.send
	return d
}

// Init verifies that the configured bridge is attached.
func (d *MCP2221) Init() error {
	_, err := d.deviceInfo()
	return err
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxWritePayload {
		return fmt.Errorf("write to %x: %d bytes: %w", address, len(buffer), eeprom.ErrDataTooLong)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.exchange(ctx)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		if err := i2cStateErr(d.response[2]); err != nil {
			d.cancel(ctx)
			return fmt.Errorf("write to %x: %w", address, err)
		}
		slog.Debug("adapter busy", "address", fmt.Sprintf("%#x", address))
		return eeprom.ErrBusBusy
	}
	// the command is accepted before the address phase; only the engine state
	// tells whether the target acknowledged
	state, err := d.settle(ctx)
	if err != nil {
		return fmt.Errorf("write to %x: %w", address, err)
	}
	if err := i2cStateErr(state); err != nil {
		d.cancel(ctx)
		return fmt.Errorf("write to %x: %w", address, err)
	}
	return nil
}

// settle reads the engine state until the transfer has left the wire.
func (d *MCP2221) settle(ctx context.Context) (byte, error) {
	var state byte
	for i := 0; i < statusPolls; i++ {
		status, err := d.status(ctx)
		if err != nil {
			return 0, err
		}
		state = byte(status.I2CState)
		if state != i2cStateAddrSend && state != i2cStatePartialData {
			return state, nil
		}
		select {
		case <-time.After(300 * time.Microsecond):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return state, nil
}

// cancel aborts the current transfer so that the engine accepts the next one.
func (d *MCP2221) cancel(ctx context.Context) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = 0x10
	if err := d.exchange(ctx); err != nil {
		slog.Debug("could not cancel transfer", "error", err)
	}
}

// i2cStateErr maps an engine state to a bus error; nil means the transfer went through.
func i2cStateErr(state byte) error {
	switch state {
	case i2cStateAddrNack:
		return eeprom.ErrNack
	case i2cStateStartTimeout, i2cStateRepStartTimeout, i2cStateAddrTimeout,
		i2cStateWriteTimeout, i2cStateReadTimeout, i2cStateStopTimeout:
		return fmt.Errorf("engine state %#x: %w", state, eeprom.ErrBusFault)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxWritePayload {
		return fmt.Errorf("read from %x: %d bytes: %w", address, len(buffer), eeprom.ErrDataTooLong)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.exchange(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return eeprom.ErrBusBusy
	}
	d.request[0] = cmdGetData
	resetBuffer(d.response)
	err = d.exchange(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", eeprom.ErrNack)
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx)
}

func (d *MCP2221) status(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.exchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		8: Internal I2C state machine state
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CState:             int(buffer[8]),
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels a transfer the bridge is stuck in, freeing the bus.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = 0x10
	err := d.exchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) deviceInfo() (hid.DeviceInfo, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	switch {
	case len(devs) == 0:
		return hid.DeviceInfo{}, ErrDeviceNotFound
	case d.config.DeviceIndex < 0 && len(devs) > 1:
		return hid.DeviceInfo{}, fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
	case d.config.DeviceIndex < 0:
		return devs[0], nil
	case d.config.DeviceIndex >= len(devs):
		return hid.DeviceInfo{}, fmt.Errorf("no device with id %d: %w", d.config.DeviceIndex, ErrDeviceNotFound)
	default:
		return devs[d.config.DeviceIndex], nil
	}
}

func (d *MCP2221) send(ctx context.Context) error {
	info, err := d.deviceInfo()
	if err != nil {
		return err
	}
	dev, err := info.Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := busctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "report", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	timer := time.NewTimer(d.config.ResponseWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to command %#x instead of %#x: %w", d.response[0], d.request[0], ErrCommandFailed)
	}
	if verbose {
		slog.Debug("read message from adapter", "report", hex.EncodeToString(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
