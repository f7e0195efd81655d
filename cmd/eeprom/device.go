package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/busctx"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/memory/at24cxx"
	"github.com/mklimuk/eeprom/memory/at24cxx/sim"
	"github.com/mklimuk/eeprom/pkg/config"
)

type session struct {
	dev     *at24cxx.Device
	chip    at24cxx.Chip
	profile config.Profile
	closers []func() error
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// resolveProfile loads the profile file and applies flags set on the command line.
func resolveProfile(c *cli.Context) (config.Profile, error) {
	p, err := config.Load(c.String("config"))
	if err != nil {
		return p, err
	}
	if c.IsSet("adapter") {
		p.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		p.Device = c.String("device")
	}
	if c.IsSet("bus") {
		p.Bus = c.Int("bus")
	}
	if c.IsSet("address") {
		a := c.Uint("address")
		if a > 0x7F {
			return p, fmt.Errorf("%w: address %#x is not a 7-bit address", config.ErrInvalidProfile, a)
		}
		p.Address = uint8(a)
	}
	if c.IsSet("chip") {
		p.Chip = c.String("chip")
	}
	if c.IsSet("page-size") {
		p.PageSize = c.Int("page-size")
	}
	if c.IsSet("speed") {
		p.SpeedKHz = c.Int("speed")
	}
	return p, p.Validate()
}

func openDevice(c *cli.Context) (*session, error) {
	p, err := resolveProfile(c)
	if err != nil {
		return nil, err
	}
	chip, ok := at24cxx.LookupChip(p.Chip)
	if !ok {
		return nil, fmt.Errorf("%w: unknown chip %q", config.ErrInvalidProfile, p.Chip)
	}
	pageSize := chip.PageSize
	if p.PageSize > 0 {
		pageSize = p.PageSize
	}
	s := &session{chip: chip, profile: p}

	switch p.Adapter {
	case "mcp2221":
		ad := adapter.NewMCP2221()
		if err := ad.Init(); err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		s.attach(c, ad, pageSize)
	case "generic":
		gb, err := i2c.NewGenericBus(p.Device)
		if err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		s.closers = append(s.closers, gb.Close)
		if p.SpeedKHz > 0 {
			if err := gb.SetSpeed(physic.Frequency(p.SpeedKHz) * physic.KiloHertz); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("could not set bus speed: %w", err)
			}
		}
		s.attach(c, gb, pageSize)
	case "nanopi":
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		s.closers = append(s.closers, npi.I2cBusAdaptor.Finalize)
		gb := i2c.NewGobotBus(npi, p.Bus)
		s.closers = append(s.closers, gb.Close)
		s.attach(c, gb, pageSize)
	case "sim":
		s.attach(c, sim.New(chip.Capacity, pageSize, sim.WithAddress(p.Address)), pageSize)
	}
	slog.Debug("device ready", "adapter", p.Adapter, "chip", chip.Name, "address", fmt.Sprintf("%#x", p.Address), "page_size", pageSize)
	return s, nil
}

func (s *session) attach(c *cli.Context, bus eeprom.I2CBus, pageSize int) {
	ctx := busctx.SetVerbose(c.Context, c.Bool("verbose"))
	wire := i2c.NewWire(bus, i2c.WithContext(ctx), i2c.WithTimeout(s.profile.TxTimeout))
	s.dev = at24cxx.New(pageSize, at24cxx.WithPollTimeout(s.profile.PollTimeout))
	s.dev.Begin(s.profile.Address, wire)
}
