package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/memory/at24cxx"
	"github.com/mklimuk/eeprom/memory/at24cxx/sim"
	"github.com/mklimuk/eeprom/pkg/config"
)

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	console.SetOutput(&out, io.Discard)
	exiter, errWriter := cli.OsExiter, cli.ErrWriter
	cli.OsExiter = func(int) {}
	cli.ErrWriter = io.Discard
	t.Cleanup(func() {
		console.SetOutput(os.Stdout, os.Stderr)
		cli.OsExiter, cli.ErrWriter = exiter, errWriter
	})
	code := run(append([]string{"eeprom", "--adapter", "sim"}, args...))
	return code, out.String()
}

func TestCLI_Probe(t *testing.T) {
	code, out := runCLI(t, "probe")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "AT24C32 at 0x50 is ready")
}

func TestCLI_Read(t *testing.T) {
	code, out := runCLI(t, "read", "--offset", "0x20", "--length", "4")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "00000020  ff ff ff ff")
}

func TestReadRange_ShortChunks(t *testing.T) {
	clock := sim.NewManualClock(time.Millisecond)
	mem := sim.New(4096, 32, sim.WithClock(clock))
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	mem.Load(0, data)
	mem.LimitReads(10)
	dev := at24cxx.New(32, at24cxx.WithClock(clock))
	dev.Begin(sim.DefaultAddress, i2c.NewWire(mem))

	buf := make([]byte, 64)
	valid, n, err := readRange(dev, 0, buf)
	assert.ErrorIs(t, err, at24cxx.ErrShortRead)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[32:42], buf[32:42])

	dump := formatDump(0, buf, valid)
	assert.Contains(t, dump, "00000000  03 0a 11 18 1f 26 2d 34  3b 42 -- -- -- -- -- --")
	assert.Contains(t, dump, "00000010  -- -- -- -- -- -- -- --  -- -- -- -- -- -- -- --")
	assert.Contains(t, dump, "00000020  e3 ea f1 f8 ff 06 0d 14  1b 22 -- -- -- -- -- --")
}

func TestFormatDump(t *testing.T) {
	dump := formatDump(0x1F0, []byte("AT24C32\x00\xff"), []bool{true, true, true, true, true, true, true, true, true})
	assert.Equal(t, "000001f0  41 54 32 34 43 33 32 00  ff                       |AT24C32..|\n", dump)
}

func TestCLI_Get(t *testing.T) {
	code, out := runCLI(t, "--chip", "AT24C256", "get", "--offset", "32767")
	assert.Equal(t, 0, code)
	assert.Equal(t, "0xff\n", out)
}

func TestCLI_Write(t *testing.T) {
	code, out := runCLI(t, "write", "--yes", "--offset", "0x1E", "--data", "01 02 03 04")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "4 bytes at 0x1e")
}

func TestCLI_Put(t *testing.T) {
	code, out := runCLI(t, "put", "--offset", "7", "--value", "0xA5")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "wrote 0xa5 at 0x7")
}

func TestCLI_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"beyond capacity", []string{"read", "--offset", "4090", "--length", "16"}, 2},
		{"bad offset", []string{"get", "--offset", "abc"}, 2},
		{"bad data", []string{"write", "--yes", "--offset", "0", "--data", "0g"}, 2},
		{"bad value", []string{"put", "--offset", "0", "--value", "256"}, 2},
		{"unknown chip", []string{"--chip", "AT24C01", "probe"}, 1},
		{"wide address", []string{"--address", "0x80", "probe"}, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, _ := runCLI(t, test.args...)
			assert.Equal(t, test.code, code)
		})
	}
}

func TestCLI_Profile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.yaml")
	code, _ := runCLI(t, "--chip", "AT24C512", "--address", "0x57", "profile", "save", path)
	require.Equal(t, 0, code)

	p, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sim", p.Adapter)
	assert.Equal(t, "AT24C512", p.Chip)
	assert.Equal(t, uint8(0x57), p.Address)

	code, out := runCLI(t, "--config", path, "--page-size", "64", "profile", "show")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "chip: AT24C512")
	assert.Contains(t, out, "page_size: 64")
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		given    string
		n        int
		expected uint16
		err      bool
	}{
		{"0", 4096, 0, false},
		{"0x0FF0", 16, 0x0FF0, false},
		{"4095", 1, 4095, false},
		{"4095", 2, 0, true},
		{"0x10000", 1, 0, true},
		{"-1", 1, 0, true},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			v, err := parseRange(test.given, test.n, 4096)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, v)
		})
	}
}

func TestParseHex(t *testing.T) {
	data, err := parseHex("0x01FF 23")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xFF, 0x23}, data)

	_, err = parseHex("")
	assert.Error(t, err)
	_, err = parseHex("abc")
	assert.Error(t, err)
}

func TestProbeMovesPointer(t *testing.T) {
	assert.True(t, probeMovesPointer("generic"))
	for _, a := range []string{"nanopi", "mcp2221", "sim"} {
		assert.False(t, probeMovesPointer(a), a)
	}
}
