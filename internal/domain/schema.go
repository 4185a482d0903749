package domain

import "time"

// SchemaColumn is one column of a monitored table's layout.
type SchemaColumn struct {
	TableName       string
	ColumnName      string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
}

// SchemaSnapshot is the stored column layout of a table at snapshot time.
// A re-snapshot fully replaces the previous generation.
type SchemaSnapshot struct {
	TableName  string
	Columns    []SchemaColumn
	CapturedAt time.Time
}

// SchemaDrift is the difference between a table's currently observed column
// set and its last recorded snapshot.
type SchemaDrift struct {
	TableName       string
	CurrentColumns  []SchemaColumn
	SnapshotColumns []SchemaColumn
	ColumnsAdded    []string
	ColumnsRemoved  []string
	DriftDetected   bool
}

// ComputeDrift compares the observed columns against the snapshot columns.
// With no snapshot baseline there is nothing to drift from: both sets come
// back empty and DriftDetected is false.
func ComputeDrift(table string, current, snapshot []SchemaColumn) SchemaDrift {
	d := SchemaDrift{
		TableName:       table,
		CurrentColumns:  current,
		SnapshotColumns: snapshot,
		ColumnsAdded:    []string{},
		ColumnsRemoved:  []string{},
	}
	if len(snapshot) == 0 {
		return d
	}

	currentSet := make(map[string]bool, len(current))
	for _, c := range current {
		currentSet[c.ColumnName] = true
	}
	snapshotSet := make(map[string]bool, len(snapshot))
	for _, c := range snapshot {
		snapshotSet[c.ColumnName] = true
	}

	for _, c := range current {
		if !snapshotSet[c.ColumnName] {
			d.ColumnsAdded = append(d.ColumnsAdded, c.ColumnName)
		}
	}
	for _, c := range snapshot {
		if !currentSet[c.ColumnName] {
			d.ColumnsRemoved = append(d.ColumnsRemoved, c.ColumnName)
		}
	}

	d.DriftDetected = len(d.ColumnsAdded) > 0 || len(d.ColumnsRemoved) > 0
	return d
}
