// Package report persists run reports and renders them for people.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// ErrInvalidName is returned for report names that are not plain file names
// of a report artifact.
var ErrInvalidName = eris.New("report: invalid report name")

// Entry describes one stored report.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// FileName is the artifact name of r: report-<timestamp>-<runid>.json, with
// a -dry suffix for runs that wrote nothing.
func FileName(r *model.Report) string {
	name := "report-" + r.Timestamp.UTC().Format("20060102T150405Z") + "-" + r.RunID
	if r.DryRun {
		name += "-dry"
	}
	return name + ".json"
}

// Write stores r as indented JSON under dir and returns the file path.
func Write(dir string, r *model.Report) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", eris.Wrapf(err, "report: create dir %s", dir)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: encode")
	}
	path := filepath.Join(dir, FileName(r))
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	return path, nil
}

// List returns the reports in dir, newest first. A missing dir is empty.
func List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, eris.Wrapf(err, "report: list %s", dir)
	}

	out := []Entry{}
	for _, de := range dirEntries {
		if de.IsDir() || !validName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime().UTC()})
	}
	// Names embed the timestamp, so reverse lexical order is newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Read loads a report by file name. Names with path elements are rejected.
func Read(dir, name string) (*model.Report, error) {
	if !validName(name) {
		return nil, eris.Wrapf(ErrInvalidName, "report: %q", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", name)
	}
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "report: decode %s", name)
	}
	return &r, nil
}

func validName(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		!strings.ContainsAny(name, `/\`) &&
		strings.HasPrefix(name, "report-") &&
		strings.HasSuffix(name, ".json")
}
