package importer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
)

// AddDir walks dir non-recursively and imports every non-hidden file as a
// snapshot, logging each failure and a final summary. A single bad file is
// logged and skipped
// rather than aborting the whole directory, since directories commonly mix
// snapshot files with unrelated entries and a CLI importing a real export
// directory should not abort on one corrupt file.
func AddDir(m *fogmap.FogMap, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("importer: read dir %q: %w", dir, err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read snapshot file", "path", path, "error", err)
			continue
		}

		if err := AddFowFile(m, entry.Name(), data); err != nil {
			logger.Warn("failed to import snapshot file", "path", path, "error", err)
			continue
		}
		imported++
	}

	logger.Info("imported snapshot directory", "dir", dir, "files", len(entries), "imported", imported)
	return nil
}
