package i2c

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.TwoWire = &Wire{}

type WireOpts struct {
	Timeout time.Duration
	Logger  *slog.Logger
	Context context.Context
}

type WireOpt func(*WireOpts)

// WithTimeout bounds every transfer handed to the underlying bus. Zero means no bound.
func WithTimeout(timeout time.Duration) WireOpt {
	return func(o *WireOpts) {
		o.Timeout = timeout
	}
}

// WithContext sets the parent of every transfer context. Values such as the
// verbose flag reach the bus through it.
func WithContext(ctx context.Context) WireOpt {
	return func(o *WireOpts) {
		o.Context = ctx
	}
}

func WithLogger(logger *slog.Logger) WireOpt {
	return func(o *WireOpts) {
		o.Logger = logger
	}
}

// Wire turns an addressable eeprom.I2CBus into a byte oriented
// eeprom.TwoWire. Written bytes are queued until EndTransmission and sent as
// one transfer; RequestFrom performs the read and buffers the result.
// Both queues hold at most eeprom.BufferSize bytes.
type Wire struct {
	bus    eeprom.I2CBus
	config WireOpts

	target   byte
	tx       []byte
	overflow bool

	rx    []byte
	rxPos int
}

func NewWire(bus eeprom.I2CBus, opts ...WireOpt) *Wire {
	config := WireOpts{}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	return &Wire{bus: bus, config: config}
}

func (w *Wire) BeginTransmission(address byte) {
	w.target = address
	w.tx = make([]byte, 0, eeprom.BufferSize)
	w.overflow = false
}

func (w *Wire) Write(p []byte) (int, error) {
	room := eeprom.BufferSize - len(w.tx)
	if len(p) > room {
		w.tx = append(w.tx, p[:room]...)
		w.overflow = true
		return room, eeprom.ErrDataTooLong
	}
	w.tx = append(w.tx, p...)
	return len(p), nil
}

func (w *Wire) WriteByte(c byte) error {
	_, err := w.Write([]byte{c})
	return err
}

// EndTransmission sends the queued bytes. An overflowed queue is dropped
// without touching the bus.
func (w *Wire) EndTransmission() eeprom.Status {
	if w.overflow {
		return eeprom.StatusDataTooLong
	}
	ctx, cancel := w.context()
	defer cancel()
	w.config.Logger.Debug("i2c write", "address", fmt.Sprintf("%#x", w.target), "data", hex.EncodeToString(w.tx))
	err := w.bus.WriteToAddr(ctx, w.target, w.tx)
	status := statusOf(err)
	if status != eeprom.StatusOK {
		w.config.Logger.Debug("i2c write failed", "address", fmt.Sprintf("%#x", w.target), "status", status, "error", err)
	}
	return status
}

// RequestFrom reads up to n bytes (capped at eeprom.BufferSize) and returns
// how many are available.
func (w *Wire) RequestFrom(address byte, n int) int {
	w.rx = nil
	w.rxPos = 0
	n = max(0, min(n, eeprom.BufferSize))
	if n == 0 {
		return 0
	}
	buf := make([]byte, n)
	ctx, cancel := w.context()
	defer cancel()
	var got int
	var err error
	if pr, ok := w.bus.(eeprom.PartialReader); ok {
		got, err = pr.ReadSomeFromAddr(ctx, address, buf)
	} else {
		err = w.bus.ReadFromAddr(ctx, address, buf)
		if err == nil {
			got = n
		}
	}
	if err != nil {
		w.config.Logger.Debug("i2c read failed", "address", fmt.Sprintf("%#x", address), "requested", n, "got", got, "error", err)
	}
	w.rx = buf[:max(0, min(got, n))]
	return len(w.rx)
}

func (w *Wire) Available() int {
	return len(w.rx) - w.rxPos
}

func (w *Wire) ReadByte() (byte, error) {
	if w.Available() == 0 {
		return 0, io.EOF
	}
	b := w.rx[w.rxPos]
	w.rxPos++
	return b, nil
}

func (w *Wire) context() (context.Context, context.CancelFunc) {
	if w.config.Timeout > 0 {
		return context.WithTimeout(w.config.Context, w.config.Timeout)
	}
	return context.WithCancel(w.config.Context)
}

func statusOf(err error) eeprom.Status {
	switch {
	case err == nil:
		return eeprom.StatusOK
	case errors.Is(err, eeprom.ErrDataTooLong):
		return eeprom.StatusDataTooLong
	case errors.Is(err, eeprom.ErrDataNack):
		return eeprom.StatusDataNack
	case errors.Is(err, eeprom.ErrBusBusy), errors.Is(err, eeprom.ErrBusFault):
		return eeprom.StatusOther
	default:
		return eeprom.StatusAddrNack
	}
}
