// Package backup keeps the append-only record of every document a commit is
// about to overwrite or delete.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// Receipt locates one appended record in the artifact.
type Receipt struct {
	Handle  string
	Offset  int64
	Entries []model.BackupEntry
}

// Recorder appends one JSON line per group to a backup artifact and syncs
// the file after every line.
type Recorder struct {
	mu     sync.Mutex
	path   string
	runID  string
	now    func() time.Time
	f      *os.File
	offset int64
	log    *zap.Logger
}

// Open creates the run's artifact under dir. The file name carries the
// timestamp and run id so runs never share a file.
func Open(dir, runID string, now func() time.Time) (*Recorder, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, eris.Wrapf(err, "backup: create dir %s", dir)
	}

	name := fmt.Sprintf("backup-%s-%s.jsonl", now().UTC().Format("20060102T150405Z"), runID)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, eris.Wrapf(err, "backup: create %s", path)
	}

	return &Recorder{
		path:  path,
		runID: runID,
		now:   now,
		f:     f,
		log:   zap.L().With(zap.String("component", "backup_recorder"), zap.String("path", path)),
	}, nil
}

// Path returns the artifact path.
func (r *Recorder) Path() string { return r.path }

// Entries converts candidates to backup entries holding their raw bytes.
func Entries(cands []model.CandidateRecord) ([]model.BackupEntry, error) {
	out := make([]model.BackupEntry, 0, len(cands))
	for _, c := range cands {
		raw := c.Raw
		if len(raw) == 0 {
			b, err := json.Marshal(c.RawFields)
			if err != nil {
				return nil, eris.Wrapf(err, "backup: encode %s", c.Key)
			}
			raw = b
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, eris.Wrapf(err, "backup: compact %s", c.Key)
		}
		out = append(out, model.BackupEntry{Key: c.Key, RawFields: buf.Bytes()})
	}
	return out, nil
}

// Append writes every candidate of a group as one line and syncs it to disk.
func (r *Recorder) Append(handle, canonicalKey string, cands []model.CandidateRecord) (Receipt, error) {
	entries, err := Entries(cands)
	if err != nil {
		return Receipt{}, err
	}

	rec := model.BackupRecord{
		Timestamp:    r.now().UTC(),
		RunID:        r.runID,
		Handle:       handle,
		CanonicalKey: canonicalKey,
		Entries:      entries,
	}
	var line bytes.Buffer
	enc := json.NewEncoder(&line)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return Receipt{}, eris.Wrapf(err, "backup: encode group %q", handle)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return Receipt{}, eris.New("backup: recorder is closed")
	}
	offset := r.offset
	n, err := r.f.Write(line.Bytes())
	r.offset += int64(n)
	if err != nil {
		return Receipt{}, eris.Wrapf(err, "backup: write group %q", handle)
	}
	if err := r.f.Sync(); err != nil {
		return Receipt{}, eris.Wrapf(err, "backup: sync group %q", handle)
	}

	r.log.Debug("backed up group", zap.String("handle", handle), zap.Int("entries", len(entries)))
	return Receipt{Handle: handle, Offset: offset, Entries: entries}, nil
}

// Verify reads the record back from disk and checks that every entry is
// present and byte-identical.
func (r *Recorder) Verify(rc Receipt) error {
	f, err := os.Open(r.path)
	if err != nil {
		return eris.Wrapf(err, "backup: reopen %s", r.path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Seek(rc.Offset, io.SeekStart); err != nil {
		return eris.Wrapf(err, "backup: seek to group %q", rc.Handle)
	}
	var rec model.BackupRecord
	if err := json.NewDecoder(f).Decode(&rec); err != nil {
		return eris.Wrapf(err, "backup: read back group %q", rc.Handle)
	}
	if rec.Handle != rc.Handle {
		return eris.Errorf("backup: read back group %q found %q", rc.Handle, rec.Handle)
	}

	got := make(map[string]json.RawMessage, len(rec.Entries))
	for _, e := range rec.Entries {
		got[e.Key] = e.RawFields
	}
	for _, want := range rc.Entries {
		have, ok := got[want.Key]
		if !ok {
			return eris.Errorf("backup: key %s missing from read back of group %q", want.Key, rc.Handle)
		}
		if !bytes.Equal(have, want.RawFields) {
			return eris.Errorf("backup: key %s differs on read back of group %q", want.Key, rc.Handle)
		}
	}
	return nil
}

// Close syncs and closes the artifact.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return eris.Wrap(err, "backup: close")
}
