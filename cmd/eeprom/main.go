package main

import (
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/pkg/config"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := cli.NewApp()
	app.Name = "eeprom"
	app.EnableBashCompletion = true
	app.Version = config.BuildInfo()
	app.Usage = "read and write AT24Cxx I2C EEPROMs"
	app.Flags = globalFlags
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&probeCmd,
		&readCmd,
		&getCmd,
		&nextCmd,
		&writeCmd,
		&putCmd,
		&profileCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}

var globalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable verbose logging",
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "device profile (yaml)",
		EnvVars: []string{"EEPROM_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus adapter: generic, nanopi, mcp2221 or sim",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "host bus device for the generic adapter",
	},
	&cli.IntFlag{
		Name:  "bus",
		Usage: "bus number for the nanopi adapter (negative selects the board default)",
	},
	&cli.UintFlag{
		Name:  "address",
		Usage: "7-bit device address",
	},
	&cli.StringFlag{
		Name:  "chip",
		Usage: "chip model (AT24C32, AT24C64, AT24C128, AT24C256, AT24C512)",
	},
	&cli.IntFlag{
		Name:  "page-size",
		Usage: "override the chip page size",
	},
	&cli.IntFlag{
		Name:  "speed",
		Usage: "bus speed in kHz for the generic adapter",
	},
}
