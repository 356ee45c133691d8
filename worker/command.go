package worker

import (
	"errors"
	"fmt"
	"strings"
)

// SplitCommand parses a command string into an argument vector. Commands
// run from the vector directly, never through a shell, so word splitting
// happens here: whitespace separates arguments, single and double quotes
// group them, and backslash escapes the next character outside single
// quotes. Shell syntax beyond that (globs, variables, pipes) is passed
// through literally; jobs that need a shell must say so explicitly, e.g.
// `sh -c "..."`.
func SplitCommand(command string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune // active quote char, 0 when none
		escaped bool
	)

	for _, r := range command {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if escaped {
		return nil, errors.New("worker: command ends with unfinished escape")
	}
	if quote != 0 {
		return nil, fmt.Errorf("worker: command has unclosed %q quote", quote)
	}
	if inWord {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, errors.New("worker: empty command")
	}

	return args, nil
}
