package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// PrintBanner writes the startup banner centred to the terminal width.
// Colour is only used when stdout is a terminal.
func PrintBanner(w io.Writer) {
	banner := `
 _      ____          __  __  ___    ___
| | /| / / /  ___ _  / /_/  |/  /__ / _ \
| |/ |/ / _ \/ _ '/ / __/ /|_/ / _ '/ ___/
|__/|__/_//_/\_,_/  \__/_/  /_/\_,_/_/

     >> PERSONA-AWARE PROPERTY BRIEFINGS <<
`

	width := termWidth()
	color, reset := "", ""
	if IsTerminal() {
		color, reset = colorNeonCyan, colorReset
	}

	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), color, l, reset)
	}
}
