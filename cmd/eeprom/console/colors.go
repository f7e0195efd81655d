package console

import "github.com/fatih/color"

// Available ANSI colors. They turn into plain text when stdout is not a terminal.
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
)
