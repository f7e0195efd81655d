package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/eeprom"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ eeprom.I2CBus = &GenericBus{}

// GenericBus is an eeprom.I2CBus on a host bus (e.g. /dev/i2c-1) opened through periph.
type GenericBus struct {
	bus   i2c.BusCloser
	probe []byte
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus:   bus,
		probe: make([]byte, 1),
	}, nil
}

func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

// WriteToAddr writes buffer to the device. The host driver skips empty
// transfers, so an empty buffer is sent as a one byte read which the device
// only acknowledges when it is idle. The read advances the part's address
// pointer by one.
func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	var err error
	if len(buffer) == 0 {
		err = b.bus.Tx(uint16(address), nil, b.probe)
	} else {
		err = b.bus.Tx(uint16(address), buffer, nil)
	}
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
