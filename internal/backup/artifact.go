package backup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
)

// ReadRecords decodes every record of an artifact in file order.
func ReadRecords(path string) ([]model.BackupRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "backup: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []model.BackupRecord
	dec := json.NewDecoder(f)
	for {
		var rec model.BackupRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "backup: decode record %d of %s", len(out)+1, path)
		}
		out = append(out, rec)
	}
}

// ReadArtifact loads an artifact as a map of handle to entries. A handle
// recorded more than once keeps its last record.
func ReadArtifact(path string) (*model.BackupArtifact, error) {
	recs, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	art := &model.BackupArtifact{Groups: make(map[string][]model.BackupEntry, len(recs))}
	for _, rec := range recs {
		if art.Timestamp.IsZero() || rec.Timestamp.Before(art.Timestamp) {
			art.Timestamp = rec.Timestamp
		}
		art.Groups[rec.Handle] = rec.Entries
	}
	return art, nil
}

// RestoreStats counts what a restore wrote.
type RestoreStats struct {
	Groups   int      `json:"groups"`
	Restored int      `json:"restored"`
	Removed  int      `json:"removed"`
	Missing  []string `json:"missing,omitempty"`
}

// Restore writes the backed-up documents of the selected handles back to the
// store and removes canonical keys the commit created. An empty handles list
// restores every group. Secondary indexes are left to the caller.
func Restore(ctx context.Context, store kv.Store, recs []model.BackupRecord, handles []string) (RestoreStats, error) {
	latest := make(map[string]model.BackupRecord, len(recs))
	var order []string
	for _, rec := range recs {
		if _, seen := latest[rec.Handle]; !seen {
			order = append(order, rec.Handle)
		}
		latest[rec.Handle] = rec
	}

	if len(handles) > 0 {
		order = append([]string(nil), handles...)
	}

	log := zap.L().With(zap.String("component", "backup_restore"))
	var stats RestoreStats
	for _, h := range order {
		rec, ok := latest[h]
		if !ok {
			stats.Missing = append(stats.Missing, h)
			continue
		}

		restored := make(map[string]bool, len(rec.Entries))
		for _, e := range rec.Entries {
			if err := store.Set(ctx, e.Key, e.RawFields); err != nil {
				return stats, eris.Wrapf(err, "backup: restore %s of %q", e.Key, h)
			}
			restored[e.Key] = true
			stats.Restored++
		}
		if rec.CanonicalKey != "" && !restored[rec.CanonicalKey] {
			n, err := store.Delete(ctx, rec.CanonicalKey)
			if err != nil {
				return stats, eris.Wrapf(err, "backup: remove canonical %s of %q", rec.CanonicalKey, h)
			}
			stats.Removed += n
		}
		stats.Groups++
		log.Info("restored group", zap.String("handle", h), zap.Int("keys", len(rec.Entries)))
	}
	return stats, nil
}
