package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirSaver writes attachments into a local directory. Files are written to
// a temporary name first and renamed into place, so a partial download is
// never left under the final name.
type DirSaver struct {
	dir string
}

// NewDirSaver returns a saver that writes into dir, creating it on demand.
func NewDirSaver(dir string) *DirSaver {
	return &DirSaver{dir: dir}
}

// Save writes data as filename inside the directory and returns the final
// path. Existing files are never overwritten: "report.pdf" becomes
// "report (1).pdf" and so on.
func (s *DirSaver) Save(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".mailgate-*.part")
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	final, err := s.freePath(SafeName(filename))
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("moving download into place: %w", err)
	}
	renamed = true

	return final, nil
}

// freePath returns the first path for name that does not exist yet.
func (s *DirSaver) freePath(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.dir, candidate)
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no free file name for %q in %s", name, s.dir)
}

// SafeName strips directory components from a gateway-supplied filename.
func SafeName(filename string) string {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, "\\", "/")))
	if name == "/" || name == "." || name == "" {
		return "attachment"
	}
	return name
}
