package repl

import (
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CompleteWord completes the word before the cursor against the shell's
// current directory, as last reported by the directory probe.
func (l *Loop) CompleteWord(line string, pos int) (head string, completions []string, tail string) {
	if pos > len(line) {
		pos = len(line)
	}
	head, tail = line[:pos], line[pos:]

	start := strings.LastIndexAny(head, " \t") + 1
	word := head[start:]
	head = head[:start]

	dir := l.currentDir
	if dir == "" {
		return head, nil, tail
	}

	if strings.HasPrefix(word, "/") {
		return head, withPrefix("/", Complete(os.DirFS("/"), word[1:])), tail
	}
	return head, Complete(os.DirFS(dir), word), tail
}

// Complete returns entries of fsys whose path starts with word. Directories
// carry a trailing slash.
func Complete(fsys fs.FS, word string) []string {
	dotSlash := strings.HasPrefix(word, "./")
	if dotSlash {
		word = word[2:]
	}

	matches, err := doublestar.Glob(fsys, escapeMeta(word)+"*")
	if err != nil {
		return nil
	}

	wantHidden := strings.HasPrefix(word[strings.LastIndex(word, "/")+1:], ".")

	completions := make([]string, 0, len(matches))
	for _, match := range matches {
		if !wantHidden && strings.HasPrefix(path.Base(match), ".") {
			continue
		}
		if info, err := fs.Stat(fsys, match); err == nil && info.IsDir() {
			match += "/"
		}
		if dotSlash {
			match = "./" + match
		}
		completions = append(completions, match)
	}
	return completions
}

func withPrefix(prefix string, items []string) []string {
	for i := range items {
		items[i] = prefix + items[i]
	}
	return items
}

// escapeMeta quotes glob metacharacters so the typed word matches literally.
func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
