package fetcher

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// HandleColumns are header names recognized as the handle column of a CSV or
// XLSX list, compared case-insensitively.
var HandleColumns = []string{"handle", "twitterhandle", "xhandle", "username"}

// ReadHandles reads a handle list. The format follows the extension: .csv,
// .xlsx and .json are parsed as such, anything else is one handle per line
// with # comments. Blank entries are dropped and exact duplicates removed;
// the order of first appearance is kept.
func ReadHandles(ctx context.Context, path string) ([]string, error) {
	var (
		raw []string
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		raw, err = readTableFile(ctx, path)
	case ".xlsx":
		var rows [][]string
		rows, err = ReadXLSX(path, XLSXOptions{})
		raw = handleColumn(rows)
	case ".json":
		raw, err = readJSONFile(path)
	default:
		raw, err = readLines(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(raw), nil
}

// SplitHandles parses a comma or whitespace separated handle list as typed
// on the command line or at a prompt.
func SplitHandles(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return dedupe(fields)
}

func readTableFile(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, err := ReadCSV(ctx, f, CSVOptions{Comment: '#'})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %s", path)
	}
	return handleColumn(rows), nil
}

func readJSONFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	handles, err := decodeHandleArray(f, []string{"handle", "twitterHandle", "xHandle", "username"})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %s", path)
	}
	return handles, nil
}

func readLines(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "fetcher: context cancelled")
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", path)
	}
	return out, nil
}

// handleColumn picks the handle column from a header row when there is one,
// else the first column of every row.
func handleColumn(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	col, start := 0, 0
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		for _, want := range HandleColumns {
			if name == want {
				col, start = i, 1
				break
			}
		}
		if start == 1 {
			break
		}
	}

	var out []string
	for _, row := range rows[start:] {
		if col < len(row) {
			out = append(out, row[col])
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
