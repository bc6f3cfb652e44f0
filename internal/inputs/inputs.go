// Package inputs expands command line path arguments into the list of PDF
// files a batch operates on.
package inputs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Expand resolves each argument to PDF file paths. Arguments may be plain
// files, directories (their *.pdf entries are taken, non-recursively), glob
// patterns, and "-" for newline-separated arguments on stdin, each expanded
// like a positional argument. Environment
// variables and a leading ~ are expanded first. The result is de-duplicated
// and preserves first-seen order; an argument that matches nothing is an
// error.
func Expand(args []string, stdin io.Reader, logger *logrus.Logger) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			logger.WithField("path", path).Debug("Ignoring non-PDF input")
			return
		}
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, path)
	}

	// Stdin lines go through the same expansion as positional arguments.
	expandOne := func(arg string) error {
		expanded := expandHome(os.ExpandEnv(arg))

		info, err := os.Stat(expanded)
		if err == nil && info.IsDir() {
			entries, err := filepath.Glob(filepath.Join(expanded, "*.pdf"))
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", expanded, err)
			}
			sort.Strings(entries)
			for _, entry := range entries {
				add(entry)
			}
			return nil
		}
		if err == nil {
			add(expanded)
			return nil
		}

		matches, err := filepath.Glob(expanded)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("no files match %q", arg)
		}
		sort.Strings(matches)
		for _, match := range matches {
			add(match)
		}
		return nil
	}

	for _, arg := range args {
		if arg == "-" {
			scanner := bufio.NewScanner(stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := expandOne(line); err != nil {
					return nil, err
				}
			}
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read paths from stdin: %w", err)
			}
			continue
		}
		if err := expandOne(arg); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
