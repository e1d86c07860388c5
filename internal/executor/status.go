package executor

import "strings"

// statusCommand lists repository changes in porcelain format; outside a
// repository it prints nothing.
const statusCommand = "git status --porcelain 2> /dev/null"

// Status summarizes the working tree of the shell's current directory
type Status int

const (
	StatusClean Status = iota
	StatusStaged
	StatusUnstaged
	StatusBoth
	StatusUnknown
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusStaged:
		return "staged"
	case StatusUnstaged:
		return "unstaged"
	case StatusBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Glyph returns the prompt decoration for the status.
func (s Status) Glyph() string {
	switch s {
	case StatusStaged:
		return "🟢 "
	case StatusUnstaged:
		return "🔴 "
	case StatusBoth:
		return "🟢🔴 "
	default:
		return "○ "
	}
}

// Classify reads `git status --porcelain` lines. Column X is the index,
// column Y the working tree, so leading spaces are significant and lines
// must not be trimmed before classification.
func Classify(lines []string) Status {
	var staged, unstaged bool

	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		x, y := line[0], line[1]

		switch {
		case strings.HasPrefix(line, "??"):
			unstaged = true
		case strings.HasPrefix(line, "!!"):
			// ignored files
		case x == 'U' || y == 'U':
			unstaged = true
		default:
			if strings.IndexByte("MTADRC", x) >= 0 {
				staged = true
			}
			if strings.IndexByte("MTDA", y) >= 0 {
				unstaged = true
			}
		}
	}

	switch {
	case staged && unstaged:
		return StatusBoth
	case staged:
		return StatusStaged
	case unstaged:
		return StatusUnstaged
	default:
		return StatusClean
	}
}
