package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Scanner checks attachment payloads before the gateway hands them out.
type Scanner interface {
	// Scan returns "" when data is clean and a verdict otherwise.
	Scan(ctx context.Context, filename string, data []byte) (string, error)
}

// NopScanner accepts everything.
type NopScanner struct{}

// Scan implements Scanner.
func (NopScanner) Scan(context.Context, string, []byte) (string, error) { return "", nil }

// ClamdScanner scans through clamdscan, passing the file descriptor so
// the daemon needs no read access to the temp directory.
type ClamdScanner struct {
	Command string
}

// Scan writes data to a temp file and runs the scanner on it. Output
// containing FOUND is a detection.
func (c ClamdScanner) Scan(ctx context.Context, filename string, data []byte) (string, error) {
	f, err := os.CreateTemp("", "mailgate-av-*")
	if err != nil {
		return "", fmt.Errorf("creating scan file for %s: %w", filename, err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing scan file for %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing scan file for %s: %w", filename, err)
	}

	cmd := exec.CommandContext(ctx, c.Command, "-m", "--fdpass", f.Name())
	var out bytes.Buffer
	cmd.Stdout = &out
	runErr := cmd.Run()

	if verdict := out.String(); strings.Contains(verdict, "FOUND") {
		return strings.TrimSpace(verdict), nil
	}

	// clamdscan exits 1 on detection and 2 on errors.
	var exitErr *exec.ExitError
	if runErr != nil && !(errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1) {
		return "", fmt.Errorf("scanning %s: %w", filename, runErr)
	}

	return "", nil
}
