package domain

import "context"

// QueryResult holds the structured output of a warehouse query.
type QueryResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Warehouse provides read access to the data plane: observed table layouts
// for drift detection, measured values for quality checks, and raw query
// execution for the diagnostic sandbox.
type Warehouse interface {
	// ObservedColumns returns the live column layout of a table
	// ("schema.table" form), ordered by ordinal position.
	ObservedColumns(ctx context.Context, table string) ([]SchemaColumn, error)
	// Measure computes the actual value for a quality check.
	Measure(ctx context.Context, check *QualityCheck) (float64, error)
	// Query executes an already-validated read statement and returns at most
	// limit rows, flagging truncation.
	Query(ctx context.Context, sqlText string, limit int) (*QueryResult, error)
}

// ModelDescriptor identifies one transformation definition in the store.
type ModelDescriptor struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Path     string `json:"path"`
}

// ModelStore is the transformation-definition store: a file tree of named
// transformation sources consumed by diagnosis and the fix lifecycle manager.
type ModelStore interface {
	List() ([]ModelDescriptor, error)
	Read(name string) (string, error)
	Write(name, content string) error
	// Backup copies the current content aside; HasBackup reports whether an
	// unconsumed backup exists; Restore writes the backup content back
	// verbatim and consumes it; DiscardBackup consumes it without restoring.
	Backup(name string) error
	HasBackup(name string) bool
	Restore(name string) error
	DiscardBackup(name string) error
}

// Builder runs the external build/compile step for the owning project.
type Builder interface {
	Build(ctx context.Context, target string) (*BuildResult, error)
}

// Reasoner is the natural-language collaborator, consumed as a black box.
// The engine never assumes which of its exposed operations the collaborator
// will invoke, or in what order.
type Reasoner interface {
	// Chat sends a message in a persistent conversation and returns the
	// collaborator's response, possibly after tool invocations.
	Chat(ctx context.Context, message string) (string, error)
	// Reset discards the conversation history.
	Reset()
	// Narrate produces a free-form explanation for a deterministic diagnosis.
	Narrate(ctx context.Context, d *Diagnosis, alert *Alert) (string, error)
	// ProposeFix authors a concrete fix for a diagnosed issue given the
	// current source of the target transformation.
	ProposeFix(ctx context.Context, d *Diagnosis, target, source string) (*FixProposal, error)
}
