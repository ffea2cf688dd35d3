package logsource

import (
	"io"
	"os"
)

// StdinName is the input name that selects standard input.
const StdinName = "-"

var stdin io.Reader = os.Stdin

// OpenStdin wraps standard input.
func OpenStdin(charset string) (*Source, error) {
	return newSource(KindStdin, StdinName, stdin, charset)
}
