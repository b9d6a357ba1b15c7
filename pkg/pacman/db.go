// Package pacman reads the pacman local package database and invokes the
// pacman/pacstrap binaries as external collaborators, per the component
// design's §6 external interfaces. Grounded on original_source's
// pacman_manager.rs for process invocation and on spec.md's literal
// description of the desc/files format for the database reader (the
// filtered original_source/ does not include a database reader to copy
// from).
package pacman

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// localDBDir is where pacman keeps one subdirectory per installed
// package, relative to a pacman root.
const localDBDir = "var/lib/pacman/local"

// ReadPackageDatabase reads every package subdirectory under
// <root>/var/lib/pacman/local, parsing each one's desc file (and files
// file, if present) into a types.PackageMeta. Entries are returned
// sorted by name for deterministic downstream processing.
func ReadPackageDatabase(root string) ([]types.PackageMeta, error) {
	dbPath := filepath.Join(root, localDBDir)
	entries, err := os.ReadDir(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.Wrap(types.ErrIO, err, "read pacman local db at %s", dbPath)
	}

	var packages []types.PackageMeta
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "ALPM_DB_VERSION" {
			continue
		}
		pkgDir := filepath.Join(dbPath, e.Name())
		meta, err := parseDescFile(filepath.Join(pkgDir, "desc"))
		if err != nil {
			return nil, err
		}
		if meta == nil {
			continue
		}
		provides, err := parseFilesFile(filepath.Join(pkgDir, "files"))
		if err != nil {
			return nil, err
		}
		meta.Provides = provides
		meta.Changelogs = parseChangelogFile(filepath.Join(pkgDir, "changelog"))
		packages = append(packages, *meta)
	}

	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })
	return packages, nil
}

// parseDescFile parses the alternating "%KEY%\n value-lines..." format
// of a pacman desc file. Unknown keys are ignored; NAME/VERSION/ARCH/
// SIZE/BUILDDATE are the only ones the encapsulator needs.
func parseDescFile(path string) (*types.PackageMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.Wrap(types.ErrIO, err, "open desc file %s", path)
	}
	defer f.Close()

	meta := &types.PackageMeta{}
	scanner := bufio.NewScanner(f)
	var currentKey string
	var values []string

	flush := func() {
		if currentKey == "" {
			return
		}
		applyDescField(meta, currentKey, values)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			flush()
			currentKey = strings.Trim(line, "%")
			values = nil
			continue
		}
		if line == "" {
			continue
		}
		values = append(values, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, types.Wrap(types.ErrIO, err, "scan desc file %s", path)
	}
	return meta, nil
}

func applyDescField(meta *types.PackageMeta, key string, values []string) {
	if len(values) == 0 {
		return
	}
	switch key {
	case "NAME":
		meta.Name = values[0]
	case "VERSION":
		meta.Version = values[0]
	case "ARCH":
		meta.Arch = values[0]
	case "SIZE":
		if n, err := strconv.ParseUint(values[0], 10, 64); err == nil {
			meta.InstallSize = n
		}
	case "BUILDDATE":
		if n, err := strconv.ParseInt(values[0], 10, 64); err == nil {
			meta.BuildTime = time.Unix(n, 0).UTC()
		}
	case "BASE":
		meta.SourcePackage = values[0]
	}
}

// parseChangelogFile counts entries in an optional per-package changelog
// file (entries begin with "* "), to drive change-frequency. Per-entry
// dates in Arch changelogs are free-text, not a fixed format, so this
// records presence (a zero time.Time per entry) rather than attempting
// to parse a date; only the count feeds ContentGroup.ChangeFrequency.
func parseChangelogFile(path string) []time.Time {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []time.Time
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "* ") {
			entries = append(entries, time.Time{})
		}
	}
	return entries
}

// parseFilesFile parses the "%FILES%" section of a pacman files file
// into absolute, "/"-prefixed paths.
func parseFilesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.Wrap(types.ErrIO, err, "open files file %s", path)
	}
	defer f.Close()

	var paths []string
	inFiles := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "%FILES%" {
			inFiles = true
			continue
		}
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			inFiles = false
			continue
		}
		if !inFiles || line == "" {
			continue
		}
		paths = append(paths, "/"+strings.TrimSuffix(line, "/"))
	}
	if err := scanner.Err(); err != nil {
		return nil, types.Wrap(types.ErrIO, err, "scan files file %s", path)
	}
	return paths, nil
}
