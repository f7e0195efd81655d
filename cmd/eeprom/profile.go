package main

import (
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var profileCmd = cli.Command{
	Name:  "profile",
	Usage: "show or save the resolved device profile",
	Subcommands: cli.Commands{
		&profileShowCmd,
		&profileSaveCmd,
	},
}

var profileShowCmd = cli.Command{
	Name: "show",
	Action: func(c *cli.Context) error {
		p, err := resolveProfile(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		out, err := yaml.Marshal(p)
		if err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		console.Printf("%s", out)
		return nil
	},
}

var profileSaveCmd = cli.Command{
	Name:      "save",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "expected exactly one path")
		}
		p, err := resolveProfile(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		if err := p.Write(c.Args().First()); err != nil {
			return console.Exit(console.ExitFailure, "could not save profile: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "profile saved to %s", c.Args().First())
		return nil
	},
}
