package model

import (
	"encoding/json"
	"time"
)

// Report is the JSON artifact written at the end of every run.
type Report struct {
	Timestamp  time.Time                `json:"timestamp"`
	RunID      string                   `json:"runId"`
	DryRun     bool                     `json:"dryRun"`
	Cancelled  bool                     `json:"cancelled,omitempty"`
	State      RunState                 `json:"state"`
	Selection  Selection                `json:"selection"`
	Summary    Summary                  `json:"summary"`
	Results    Results                  `json:"results"`
	Orphans    []Orphan                 `json:"orphans"`
	Malformed  []MalformedKey           `json:"malformed"`
	Index      *IndexStats              `json:"index,omitempty"`
	Backups    map[string][]BackupEntry `json:"backups"`
	BackupFile string                   `json:"backupFile,omitempty"`
	Fatal      string                   `json:"fatal,omitempty"`
	DurationMs int64                    `json:"durationMs"`
}

// Summary holds the run counters.
type Summary struct {
	KeysScanned int `json:"keysScanned"`
	Documents   int `json:"documents"`
	Malformed   int `json:"malformed"`
	Absent      int `json:"absent"`
	Orphans     int `json:"orphans"`
	Groups      int `json:"groups"`
	Duplicates  int `json:"duplicates"` // groups with more than one document
	Selected    int `json:"selected"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Noop        int `json:"noop"`
}

// Results lists per-group outcomes.
type Results struct {
	Success []GroupResult  `json:"success"`
	Failed  []GroupFailure `json:"failed"`
	Skipped []SkippedGroup `json:"skipped"`
}

// CandidateScore is a scored candidate as it appears in the report.
type CandidateScore struct {
	Key       string         `json:"key"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// GroupResult is a merged group. In a dry run it describes what a commit
// would do.
type GroupResult struct {
	Handle       string           `json:"handle"`
	Action       GroupAction      `json:"action"`
	CanonicalKey string           `json:"canonicalKey"`
	CanonicalID  string           `json:"canonicalId"`
	PrimaryKey   string           `json:"primaryKey"`
	SourceKeys   []string         `json:"sourceKeys"`
	DeletedKeys  []string         `json:"deletedKeys,omitempty"`
	Scores       []CandidateScore `json:"scores"`
	MergeLog     MergeLog         `json:"mergeLog"`
	Canonical    map[string]any   `json:"canonical,omitempty"`
}

// GroupFailure is a group whose merge or commit failed. ErrorType is
// "transient" when a re-run may succeed and "permanent" otherwise.
type GroupFailure struct {
	Handle    string   `json:"handle"`
	Stage     string   `json:"stage"`
	Reason    string   `json:"reason"`
	ErrorType string   `json:"errorType"`
	Keys      []string `json:"keys,omitempty"`
}

// SkippedGroup is a requested handle the run did not act on.
type SkippedGroup struct {
	Handle string `json:"handle"`
	Reason string `json:"reason"`
}

// MalformedKey is a scanned key that did not yield a usable document.
type MalformedKey struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Absent bool   `json:"absent,omitempty"`
}

// IndexStats summarizes an index rebuild or, for dry runs, an index plan.
type IndexStats struct {
	Planned    bool           `json:"planned"`
	Cleared    int            `json:"cleared"`
	Profiles   int            `json:"profiles"`
	Entries    int            `json:"entries"`
	Failed     int            `json:"failed"`
	Dimensions map[string]int `json:"dimensions,omitempty"`
	Failures   []Orphan       `json:"failures,omitempty"`
}

// BackupEntry is one source key and its raw document as it was before a
// commit.
type BackupEntry struct {
	Key       string          `json:"key"`
	RawFields json.RawMessage `json:"rawFields"`
}

// BackupRecord is one line of a backup artifact: every source document of one
// group.
type BackupRecord struct {
	Timestamp    time.Time     `json:"timestamp"`
	RunID        string        `json:"runId"`
	Handle       string        `json:"handle"`
	CanonicalKey string        `json:"canonicalKey,omitempty"`
	Entries      []BackupEntry `json:"entries"`
}

// BackupArtifact is a whole backup file keyed by normalized handle.
type BackupArtifact struct {
	Timestamp time.Time                `json:"timestamp"`
	Groups    map[string][]BackupEntry `json:"groups"`
}
