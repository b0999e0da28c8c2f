package internal

import "time"

// ReportRequest identifies the report to fetch and the filter applied to it.
// It is created from user input (or a configured default) and consumed once
// by the acquirer.
type ReportRequest struct {
	ReportID string
	Date     time.Time
}

// RawArtifact is the file produced by the download step, before any
// transformation.
type RawArtifact struct {
	Path   string
	Format string
	Size   int64
}

// ExportArtifact is the final output file. Its existence under the final
// name marks the run as materially complete.
type ExportArtifact struct {
	Path   string
	Format string
	Rows   int
	Size   int64
	SHA256 string
}
