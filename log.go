package woff2

import (
	"io"
	"log"
)

// Warn receives non-fatal diagnostics (currently just the decompression-
// bomb ratio getting close to, but not over, the threshold). Silent by
// default; set Warn.SetOutput to something else to observe it.
var Warn = log.New(io.Discard, "woff2: ", 0)
