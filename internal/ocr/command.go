package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// DefaultCommand drives the Tesseract CLI. {{input}} expands to the page
// image (or a list file when there are several), {{outbase}} to the output
// path without its .pdf extension, which is how tesseract names its PDF
// output.
const DefaultCommand = "tesseract {{input}} {{outbase}} --dpi {{dpi}} pdf"

// CommandEngine runs an external OCR command built from a shlex-parsed
// template. Any OCR tool that can be driven from the command line plugs in
// through the template; placeholders are {{input}}, {{output}}, {{outbase}},
// and {{dpi}}.
type CommandEngine struct {
	template string
	logger   *logrus.Logger
}

// NewCommandEngine returns an engine for the given command template, or the
// Tesseract default when template is empty.
func NewCommandEngine(template string, logger *logrus.Logger) *CommandEngine {
	if template == "" {
		template = DefaultCommand
	}
	return &CommandEngine{template: template, logger: logger}
}

// Convert invokes the external command. Stderr is captured and returned
// verbatim inside the error on failure.
func (e *CommandEngine) Convert(ctx context.Context, images []string, dpi int, outPath string) error {
	if len(images) == 0 {
		return fmt.Errorf("no page images to convert")
	}

	input := images[0]
	if len(images) > 1 {
		// Tesseract-style tools take a list file for multi-page input.
		listFile, err := writeListFile(images)
		if err != nil {
			return err
		}
		defer func() {
			if err := os.Remove(listFile); err != nil {
				e.logger.WithError(err).Warn("Failed to remove image list file")
			}
		}()
		input = listFile
	}

	argv, err := buildArgs(e.template, map[string]string{
		"input":   input,
		"output":  outPath,
		"outbase": strings.TrimSuffix(outPath, filepath.Ext(outPath)),
		"dpi":     strconv.Itoa(dpi),
	})
	if err != nil {
		return err
	}

	e.logger.WithField("command", strings.Join(argv, " ")).Debug("Starting OCR command")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = strings.TrimSpace(stdout.String())
		}
		if diagnostic != "" {
			return fmt.Errorf("%s failed: %w: %s", argv[0], err, diagnostic)
		}
		return fmt.Errorf("%s failed: %w", argv[0], err)
	}

	e.logger.WithField("output", outPath).Debug("OCR command finished")
	return nil
}

// buildArgs splits the template with shell quoting rules and substitutes
// placeholders. Placeholders may appear inside larger tokens
// (e.g. /out:{{output}}).
func buildArgs(template string, vars map[string]string) ([]string, error) {
	tokens, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR command template: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty OCR command template")
	}
	for i, tok := range tokens {
		for name, val := range vars {
			tok = strings.ReplaceAll(tok, "{{"+name+"}}", val)
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeListFile(images []string) (string, error) {
	f, err := os.CreateTemp("", "batchocr_pages_*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create image list file: %w", err)
	}
	for _, img := range images {
		if _, err := fmt.Fprintln(f, img); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("failed to write image list file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close image list file: %w", err)
	}
	return f.Name(), nil
}
