package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logx "namebot/pkg/logx"
)

// ExportSeedFile rewrites the seed file with the union of the catalog's
// display names and whatever lines the file already holds. Lines are
// deduplicated by normalized key and sorted; existing lines absent from the
// catalog are preserved. The rewrite is atomic (temp file + rename).
func ExportSeedFile(ctx context.Context, store *Store, path string, log logx.Logger) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, fmt.Errorf("export: seed file path is empty")
	}

	entries, err := store.ListAll(ctx, OrderByID)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(entries))
	var lines []string
	add := func(name string) {
		key := Normalize(name)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		lines = append(lines, name)
	}

	for _, e := range entries {
		add(e.DisplayName)
	}
	for _, line := range readSeedLines(path, log) {
		add(line)
	}

	sort.Strings(lines)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp := path + ".tmp"
	data := strings.Join(lines, "\n")
	if len(lines) > 0 {
		data += "\n"
	}
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	log.Info("catalog exported", logx.Int("names", len(lines)), logx.String("path", path))
	return len(lines), nil
}
