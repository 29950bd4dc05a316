package main

import (
	"log"
	"os"

	"github.com/tdewolff/argp"
)

var (
	Error   *log.Logger
	Warning *log.Logger
)

func main() {
	Error = log.New(os.Stderr, "ERROR: ", 0)
	Warning = log.New(os.Stderr, "WARNING: ", 0)

	cmd := argp.New("Inspect and convert WOFF2 font files")
	cmd.AddCmd(&Info{}, "info", "Print the SFNT table directory of a WOFF2 font")
	cmd.AddCmd(&Convert{}, "convert", "Decode a WOFF2 font to SFNT (TTF/OTF/TTC)")
	cmd.Parse()
}
