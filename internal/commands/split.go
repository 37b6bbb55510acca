package commands

import (
	"fmt"

	"github.com/google/shlex"
)

// splitLine breaks a shell line into words using POSIX-like quoting rules.
func splitLine(line string) ([]string, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command line: %w", err)
	}
	if len(words) == 0 {
		return nil, nil
	}
	return words, nil
}
