package domain

import "time"

// Fix lifecycle states per target definition:
// Clean → BackedUp → Applied → {Verified | RolledBack}.
const (
	FixStateClean      = "Clean"
	FixStateBackedUp   = "Backed_Up"
	FixStateApplied    = "Applied"
	FixStateVerified   = "Verified"
	FixStateRolledBack = "Rolled_Back"
)

// FixRecord describes one applied fix. The backup is retained until a
// rollback consumes it or a commit after successful validation supersedes it;
// at most one outstanding backup exists per target definition.
type FixRecord struct {
	Target     string
	BackupPath string
	AppliedAt  time.Time
	State      string
}

// BuildResult is the outcome of the external build/validate step.
type BuildResult struct {
	Success bool
	Output  string
}
