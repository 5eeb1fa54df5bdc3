package catalog

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"

	logx "namebot/pkg/logx"
)

// LoadSeedNames reads a newline-separated name list. The self name goes
// first so it always ends up as entry id 1 on a fresh install; duplicates
// against the file are collapsed during seeding. A missing or empty file
// leaves the self name alone.
func LoadSeedNames(path, self string, log logx.Logger) []string {
	var names []string
	if s := strings.TrimSpace(self); s != "" {
		names = append(names, s)
	}
	lines := readSeedLines(path, log)
	if len(lines) == 0 {
		if len(names) > 0 {
			log.Warn("seed file missing or empty, using default name only", logx.String("path", path))
		}
		return names
	}
	log.Info("loaded default names from file", logx.Int("count", len(lines)), logx.String("path", path))
	return append(names, lines...)
}

func readSeedLines(path string, log logx.Logger) []string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error("failed reading seed file", logx.String("path", path), logx.Err(err))
		}
		return nil
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		log.Error("failed reading seed file", logx.String("path", path), logx.Err(err))
	}
	return names
}
