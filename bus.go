package eeprom

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BufferSize is the two-wire transaction ceiling in bytes, both directions.
const BufferSize = 32

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrNack is returned by transports when the addressed device did not acknowledge.
var ErrNack = errors.New("device did not acknowledge")

var (
	ErrDataTooLong = errors.New("transmit buffer overflow")
	ErrDataNack    = errors.New("device did not acknowledge data")
	ErrBusFault    = errors.New("bus fault")
)

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// PartialReader is implemented by transports that can end a read early and
// report how many bytes were actually received.
type PartialReader interface {
	ReadSomeFromAddr(ctx context.Context, address byte, buffer []byte) (int, error)
}

// Status is the outcome of a queued write transaction.
type Status uint8

const (
	StatusOK          Status = 0
	StatusDataTooLong Status = 1
	StatusAddrNack    Status = 2
	StatusDataNack    Status = 3
	StatusOther       Status = 4
)

// Err maps the status to one of the package sentinels, nil for StatusOK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusDataTooLong:
		return ErrDataTooLong
	case StatusAddrNack:
		return ErrNack
	case StatusDataNack:
		return ErrDataNack
	default:
		return ErrBusFault
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDataTooLong:
		return "data too long"
	case StatusAddrNack:
		return "address nack"
	case StatusDataNack:
		return "data nack"
	default:
		return fmt.Sprintf("bus fault (%d)", uint8(s))
	}
}

// TwoWire is a byte-oriented two-wire master. Writes are queued between
// BeginTransmission and EndTransmission; reads are primed by RequestFrom and
// drained with ReadByte.
type TwoWire interface {
	BeginTransmission(address byte)
	Write(p []byte) (int, error)
	WriteByte(c byte) error
	EndTransmission() Status
	RequestFrom(address byte, n int) int
	Available() int
	ReadByte() (byte, error)
}

// Clock is a monotonic millisecond time source.
type Clock interface {
	Millis() int64
	Sleep(d time.Duration)
}

// SystemClock counts milliseconds from its first use on the runtime monotonic clock.
type SystemClock struct {
	epoch time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

func (c *SystemClock) Millis() int64 {
	return time.Since(c.epoch).Milliseconds()
}

func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
