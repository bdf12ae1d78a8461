package model

// RunState is a step of a reconciliation run.
type RunState string

const (
	RunStateScanning   RunState = "scanning"
	RunStateGrouped    RunState = "grouped"
	RunStateDryMerged  RunState = "scored_merged_dry"
	RunStateConfirm    RunState = "confirm"
	RunStateCommitting RunState = "committing"
	RunStateIndexing   RunState = "indexing"
	RunStateReported   RunState = "reported"
)

// GroupAction describes what a commit does (or would do) to a group.
type GroupAction string

const (
	GroupActionMerge   GroupAction = "merge"   // several documents fold into one
	GroupActionMigrate GroupAction = "migrate" // single document moves to the canonical key
	GroupActionNoop    GroupAction = "noop"    // already canonical
)

// SelectionMode picks which identity groups a run commits.
type SelectionMode string

const (
	SelectAll     SelectionMode = "all"
	SelectHandles SelectionMode = "handles"
	SelectRole    SelectionMode = "role"
)

// Selection narrows a run to part of the identity groups.
type Selection struct {
	Mode    SelectionMode `json:"mode"`
	Handles []string      `json:"handles,omitempty"`
	Role    string        `json:"role,omitempty"`
}

// Failure stages.
const (
	StageLoad     = "load"
	StageMerge    = "merge"
	StageValidate = "validate"
	StageBackup   = "backup"
	StageWrite    = "write"
	StageReadBack = "readback"
	StageDelete   = "delete"
)
