package observation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/slr.track/internal/security"
)

// LoadDir imports every *.json file directly under dir, labelling each set
// with the file name. Files that fail to parse are logged and skipped.
func (r *Registry) LoadDir(dir string) ([]Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read observations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var added []Set
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			r.logf("skipping %s: %v", path, err)
			continue
		}
		s, err := r.loadFile(path, strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			r.logf("skipping %s: %v", path, err)
			continue
		}
		added = append(added, s)
	}
	return added, nil
}

func (r *Registry) loadFile(path, label string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, err
	}
	defer f.Close()
	points, _, err := ParseFile(f)
	if err != nil {
		return Set{}, err
	}
	return r.Add(label, points)
}
