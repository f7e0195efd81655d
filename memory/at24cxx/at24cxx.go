// Package at24cxx drives 24-series two-wire serial EEPROMs (AT24C32, AT24C64
// and larger parts with a configurable page size).
//
// Writes are split so that no bus transaction crosses a page boundary or
// exceeds the 32 byte transaction buffer. After every write the part runs an
// internal write cycle during which it does not acknowledge its address, so
// each transaction is preceded by acknowledge polling bounded by a deadline
// (15ms by default).
//
// Two flavours of the API are provided. PutByte, Write, Next, GetByte and
// Read report failures as false or a zero byte. WriteByteAt, WriteAt,
// ReadCurrent, ReadByteAt and ReadAt return errors and issue exactly the same
// bus traffic.
//
// Example usage:
//
//	bus := i2c.NewWire(transport)
//	dev := at24cxx.New(32)
//	dev.Begin(0x50, bus)
//	if _, err := dev.WriteAt(0x0100, []byte("hello")); err != nil { log.Fatal(err) }
//	buf := make([]byte, 5)
//	_, err := dev.ReadAt(0x0100, buf)
package at24cxx

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/eeprom"
)

var (
	ErrNotReady       = errors.New("at24cxx: device not ready")
	ErrAddressNack    = errors.New("at24cxx: address not acknowledged")
	ErrShortRead      = errors.New("at24cxx: short read")
	ErrNotInitialized = errors.New("at24cxx: device not initialized")
)

type Opts struct {
	Clock       eeprom.Clock
	RetryPolicy RetryPolicy
	Logger      *slog.Logger
}

type Opt func(*Opts)

func WithClock(clock eeprom.Clock) Opt {
	return func(o *Opts) {
		o.Clock = clock
	}
}

func WithRetryPolicy(policy RetryPolicy) Opt {
	return func(o *Opts) {
		o.RetryPolicy = policy
	}
}

// WithPollTimeout replaces the retry policy with a plain deadline.
func WithPollTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.RetryPolicy = Deadline{Timeout: timeout}
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// Device is a single EEPROM on a borrowed two-wire bus. It is not safe for
// concurrent use and it does not serialize access to the bus.
type Device struct {
	bus      eeprom.TwoWire
	address  byte
	pageSize int

	clock  eeprom.Clock
	policy RetryPolicy
	log    *slog.Logger

	err error
}

// New creates a device with the given page size. Non-positive page sizes fall
// back to DefaultPageSize. Begin must be called before any transfer.
func New(pageSize int, opts ...Opt) *Device {
	config := Opts{
		RetryPolicy: Deadline{Timeout: DefaultPollTimeout},
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Clock == nil {
		config.Clock = eeprom.NewSystemClock()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if pageSize <= 0 {
		config.Logger.Warn("invalid page size, using default", "page_size", pageSize, "default", DefaultPageSize)
		pageSize = DefaultPageSize
	}
	return &Device{
		pageSize: pageSize,
		clock:    config.Clock,
		policy:   config.RetryPolicy,
		log:      config.Logger,
	}
}

// NewChip creates a device with the page size of a known part.
func NewChip(chip Chip, opts ...Opt) *Device {
	return New(chip.PageSize, opts...)
}

// Begin binds the device to its 7-bit bus address and a bus it does not own.
func (d *Device) Begin(address byte, bus eeprom.TwoWire) {
	d.address = address
	d.bus = bus
}

func (d *Device) Address() byte {
	return d.address
}

func (d *Device) PageSize() int {
	return d.pageSize
}

// Err reports the outcome of the most recent readiness poll: nil, ErrNotReady
// or ErrNotInitialized.
func (d *Device) Err() error {
	return d.err
}

// PollReady probes the device until it acknowledges or the retry policy gives
// up. It never blocks past the policy deadline.
func (d *Device) PollReady() bool {
	d.err = nil
	if d.bus == nil {
		d.err = ErrNotInitialized
		return false
	}
	start := d.clock.Millis()
	attempt := 0
	for {
		elapsed := time.Duration(d.clock.Millis()-start) * time.Millisecond
		wait, ok := d.policy.Next(attempt, elapsed)
		if !ok {
			break
		}
		if wait > 0 {
			d.clock.Sleep(wait)
		}
		attempt++
		if d.probe() {
			return true
		}
	}
	d.err = ErrNotReady
	d.log.Debug("eeprom did not acknowledge", "address", fmt.Sprintf("%#x", d.address), "attempts", attempt)
	return false
}

// probe sends an empty write; an acknowledged address means the write cycle is over.
func (d *Device) probe() bool {
	d.bus.BeginTransmission(d.address)
	return d.bus.EndTransmission() == eeprom.StatusOK
}

// transmit sends [addrHigh, addrLow, data...] as one transaction.
func (d *Device) transmit(address uint16, data []byte) eeprom.Status {
	d.bus.BeginTransmission(d.address)
	_ = d.bus.WriteByte(byte(address >> 8))
	_ = d.bus.WriteByte(byte(address & 0xFF))
	if len(data) > 0 {
		_, _ = d.bus.Write(data)
	}
	return d.bus.EndTransmission()
}

// WriteByteAt writes a single byte.
func (d *Device) WriteByteAt(address uint16, value byte) error {
	if !d.PollReady() {
		return fmt.Errorf("at24cxx: write at %#04x: %w", address, d.err)
	}
	if err := d.transmit(address, []byte{value}).Err(); err != nil {
		return fmt.Errorf("at24cxx: write at %#04x: %w", address, err)
	}
	return nil
}

// WriteAt writes data starting at address in page bounded chunks, polling
// before each one. It stops at the first chunk the device is not ready for;
// chunks written before stay written. A chunk whose transaction is rejected
// is reported but does not stop the transfer. The returned count covers
// acknowledged chunks only.
func (d *Device) WriteAt(address uint16, data []byte) (int, error) {
	var errs []error
	written := 0
	for _, c := range PlanWrite(address, len(data), d.pageSize) {
		if !d.PollReady() {
			errs = append(errs, fmt.Errorf("at24cxx: write chunk at %#04x: %w", c.Address, d.err))
			return written, errors.Join(errs...)
		}
		status := d.transmit(c.Address, data[c.Offset:c.Offset+c.Size])
		if err := status.Err(); err != nil {
			errs = append(errs, fmt.Errorf("at24cxx: write chunk at %#04x: %w", c.Address, err))
			continue
		}
		written += c.Size
	}
	return written, errors.Join(errs...)
}

// ReadCurrent reads one byte at the device's internal address pointer.
func (d *Device) ReadCurrent() (byte, error) {
	if !d.PollReady() {
		return 0, fmt.Errorf("at24cxx: read current: %w", d.err)
	}
	d.bus.RequestFrom(d.address, 1)
	if d.bus.Available() == 0 {
		return 0, fmt.Errorf("at24cxx: read current: %w", ErrShortRead)
	}
	b, err := d.bus.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("at24cxx: read current: %w: %w", ErrShortRead, err)
	}
	return b, nil
}

// ReadByteAt reads one byte at address.
func (d *Device) ReadByteAt(address uint16) (byte, error) {
	dst := []byte{0}
	_, err := d.readChunk(address, dst)
	if err != nil {
		return 0, err
	}
	return dst[0], nil
}

// ReadAt fills out starting at address in chunks of at most MaxReadChunk
// bytes. A failed chunk does not stop the transfer; slots it should have
// filled are left untouched. The returned count is the number of bytes
// actually copied and err joins every chunk failure.
func (d *Device) ReadAt(address uint16, out []byte) (int, error) {
	var errs []error
	n := 0
	for _, c := range PlanRead(address, len(out)) {
		got, err := d.readChunk(c.Address, out[c.Offset:c.Offset+c.Size])
		n += got
		if err != nil {
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}

func (d *Device) readChunk(address uint16, dst []byte) (int, error) {
	if !d.PollReady() {
		return 0, fmt.Errorf("at24cxx: read at %#04x: %w", address, d.err)
	}
	if err := d.transmit(address, nil).Err(); err != nil {
		return 0, fmt.Errorf("at24cxx: read at %#04x: %w: %w", address, ErrAddressNack, err)
	}
	d.bus.RequestFrom(d.address, len(dst))
	r := 0
	for d.bus.Available() > 0 && r < len(dst) {
		b, err := d.bus.ReadByte()
		if err != nil {
			break
		}
		dst[r] = b
		r++
	}
	if r < len(dst) {
		d.log.Debug("short read", "address", fmt.Sprintf("%#04x", address), "requested", len(dst), "got", r)
		return r, fmt.Errorf("at24cxx: read at %#04x: %w: got %d of %d bytes", address, ErrShortRead, r, len(dst))
	}
	return r, nil
}

func pollFailed(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrNotInitialized)
}

// PutByte writes a single byte and reports false only when the device never
// became ready.
func (d *Device) PutByte(address uint16, value byte) bool {
	return !pollFailed(d.WriteByteAt(address, value))
}

// Write writes the first length bytes of data. It returns false if the device
// stopped acknowledging before all chunks were sent.
func (d *Device) Write(address uint16, data []byte, length int) bool {
	_, err := d.WriteAt(address, data[:clamp(length, len(data))])
	return !pollFailed(err)
}

// Next reads the byte at the device's address pointer. 0 is returned on any
// failure, indistinguishable from a stored zero. That includes an empty
// response, where an Arduino Wire read would yield 0xFF.
func (d *Device) Next() byte {
	b, _ := d.ReadCurrent()
	return b
}

// GetByte reads the byte at address. 0 is returned on any failure.
func (d *Device) GetByte(address uint16) byte {
	b, _ := d.ReadByteAt(address)
	return b
}

// Read fills the first length bytes of out and returns out. Failures are not
// reported; slots that could not be read keep their previous content.
func (d *Device) Read(address uint16, out []byte, length int) []byte {
	_, _ = d.ReadAt(address, out[:clamp(length, len(out))])
	return out
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	return min(n, limit)
}
