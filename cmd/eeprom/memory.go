package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/memory/at24cxx"
)

func offsetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "offset",
		Aliases:  []string{"o"},
		Usage:    "memory address (decimal or 0x prefixed)",
		Required: true,
	}
}

var probeCmd = cli.Command{
	Name:  "probe",
	Usage: "check that the device acknowledges its address",
	Action: withDevice(func(c *cli.Context, s *session) error {
		if !s.dev.PollReady() {
			return console.Exit(console.ExitFailure, "%s device %#x did not respond: %s", console.PictoStop, s.profile.Address, console.Red(s.dev.Err()))
		}
		console.PInfof(console.PictoCheck, "%s at %s is ready", s.chip.Name, console.White(fmt.Sprintf("%#x", s.profile.Address)))
		return nil
	}),
}

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "dump a memory range",
	Flags: []cli.Flag{
		offsetFlag(),
		&cli.IntFlag{Name: "length", Aliases: []string{"n"}, Usage: "number of bytes to read", Value: 16},
	},
	Action: withDevice(func(c *cli.Context, s *session) error {
		length := c.Int("length")
		offset, err := parseRange(c.String("offset"), length, s.chip.Capacity)
		if err != nil {
			return console.Exit(console.ExitUsage, "%s", err)
		}
		buf := make([]byte, length)
		valid, n, err := readRange(s.dev, offset, buf)
		console.Print(strings.TrimRight(formatDump(int(offset), buf, valid), "\n"))
		if err != nil {
			return console.Exit(console.ExitFailure, "read %d of %d bytes: %s", n, length, console.Red(err))
		}
		return nil
	}),
}

var getCmd = cli.Command{
	Name:  "get",
	Usage: "read a single byte",
	Flags: []cli.Flag{offsetFlag()},
	Action: withDevice(func(c *cli.Context, s *session) error {
		offset, err := parseRange(c.String("offset"), 1, s.chip.Capacity)
		if err != nil {
			return console.Exit(console.ExitUsage, "%s", err)
		}
		b, err := s.dev.ReadByteAt(offset)
		if err != nil {
			return console.Exit(console.ExitFailure, "read error: %s", console.Red(err))
		}
		console.Printf("%#04x\n", b)
		return nil
	}),
}

var nextCmd = cli.Command{
	Name:  "next",
	Usage: "read the byte at the device's internal address pointer (the generic adapter's ready check moves the pointer by one)",
	Action: withDevice(func(c *cli.Context, s *session) error {
		if probeMovesPointer(s.profile.Adapter) {
			console.Warnf("the ready check on the generic adapter is a one byte read; the byte returned is one past the pointer")
		}
		b, err := s.dev.ReadCurrent()
		if err != nil {
			return console.Exit(console.ExitFailure, "read error: %s", console.Red(err))
		}
		console.Printf("%#04x\n", b)
		return nil
	}),
}

var writeCmd = cli.Command{
	Name:    "write",
	Aliases: []string{"wr"},
	Usage:   "write hex encoded data",
	Flags: []cli.Flag{
		offsetFlag(),
		&cli.StringFlag{Name: "data", Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: withDevice(func(c *cli.Context, s *session) error {
		data, err := parseHex(c.String("data"))
		if err != nil {
			return console.Exit(console.ExitUsage, "invalid data: %s", err)
		}
		offset, err := parseRange(c.String("offset"), len(data), s.chip.Capacity)
		if err != nil {
			return console.Exit(console.ExitUsage, "%s", err)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write %d bytes at %#x?", len(data), offset))
			if err != nil {
				return console.Exit(console.ExitUsage, "confirmation failed (use --yes): %s", err)
			}
			if !ok {
				console.Warnf("aborted")
				return nil
			}
		}
		n, err := s.dev.WriteAt(offset, data)
		if err != nil {
			return console.Exit(console.ExitFailure, "wrote %d of %d bytes: %s", n, len(data), console.Red(err))
		}
		console.PInfof(console.PictoChip, "wrote %s bytes at %#x", console.White(n), offset)
		return nil
	}),
}

var putCmd = cli.Command{
	Name:  "put",
	Usage: "write a single byte",
	Flags: []cli.Flag{
		offsetFlag(),
		&cli.StringFlag{Name: "value", Usage: "byte value (decimal or 0x prefixed)", Required: true},
	},
	Action: withDevice(func(c *cli.Context, s *session) error {
		offset, err := parseRange(c.String("offset"), 1, s.chip.Capacity)
		if err != nil {
			return console.Exit(console.ExitUsage, "%s", err)
		}
		v, err := strconv.ParseUint(c.String("value"), 0, 8)
		if err != nil {
			return console.Exit(console.ExitUsage, "invalid value: %s", err)
		}
		if err := s.dev.WriteByteAt(offset, byte(v)); err != nil {
			return console.Exit(console.ExitFailure, "write error: %s", console.Red(err))
		}
		console.PInfof(console.PictoChip, "wrote %#04x at %#x", v, offset)
		return nil
	}),
}

func withDevice(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openDevice(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		defer func() {
			if err := s.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}()
		return action(c, s)
	}
}

// probeMovesPointer reports adapters whose ready check reads a byte, see
// i2c.GenericBus.WriteToAddr.
func probeMovesPointer(adapter string) bool {
	return adapter == "generic"
}

// readRange reads buf chunk by chunk from offset and marks which bytes came
// from the device. A short chunk leaves the rest of its slots unmarked.
func readRange(dev *at24cxx.Device, offset uint16, buf []byte) ([]bool, int, error) {
	valid := make([]bool, len(buf))
	var errs []error
	n := 0
	for _, c := range at24cxx.PlanRead(offset, len(buf)) {
		got, err := dev.ReadAt(c.Address, buf[c.Offset:c.Offset+c.Size])
		for i := 0; i < got; i++ {
			valid[c.Offset+i] = true
		}
		n += got
		if err != nil {
			errs = append(errs, err)
		}
	}
	return valid, n, errors.Join(errs...)
}

// formatDump renders data like hex.Dump with offsets starting at base. Bytes
// not marked valid are shown as "--".
func formatDump(base int, data []byte, valid []bool) string {
	var sb strings.Builder
	for line := 0; line < len(data); line += 16 {
		end := min(line+16, len(data))
		ascii := make([]byte, 0, 16)
		_, _ = fmt.Fprintf(&sb, "%08x ", base+line)
		for i := line; i < line+16; i++ {
			if i == line+8 {
				sb.WriteByte(' ')
			}
			switch {
			case i >= end:
				sb.WriteString("   ")
			case !valid[i]:
				sb.WriteString(" --")
				ascii = append(ascii, ' ')
			default:
				_, _ = fmt.Fprintf(&sb, " %02x", data[i])
				ascii = append(ascii, printable(data[i]))
			}
		}
		_, _ = fmt.Fprintf(&sb, "  |%s|\n", ascii)
	}
	return sb.String()
}

func printable(b byte) byte {
	if b < 32 || b > 126 {
		return '.'
	}
	return b
}

var errOutOfRange = errors.New("out of range")

// parseRange parses a memory address and checks that n bytes starting at it
// fit in a part of the given capacity.
func parseRange(s string, n, capacity int) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	if n < 0 || int(v)+n > capacity {
		return 0, fmt.Errorf("%w: %d bytes at %#x exceed capacity %d", errOutOfRange, n, v, capacity)
	}
	return uint16(v), nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("no data")
	}
	return data, nil
}
