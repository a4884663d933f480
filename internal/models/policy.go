package models

// PolicySummary describes one ingested policy document.
type PolicySummary struct {
	PolicyID       string  `json:"policy_id"`
	SourceFilename *string `json:"source_filename,omitempty"`
	Jurisdiction   *string `json:"jurisdiction,omitempty"`
	ClaimType      *string `json:"claim_type,omitempty"`
	ChunksIndexed  *int    `json:"chunks_indexed,omitempty"`
}

// Filename returns the source filename, or "" when the backend did not record one.
func (p PolicySummary) Filename() string {
	if p.SourceFilename == nil {
		return ""
	}
	return *p.SourceFilename
}

// Chunks returns the indexed chunk count, or 0 when unknown.
func (p PolicySummary) Chunks() int {
	if p.ChunksIndexed == nil {
		return 0
	}
	return *p.ChunksIndexed
}

// IngestResult is the response of POST /ingest.
type IngestResult struct {
	PolicyID      string `json:"policy_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// Health is the response of GET /health.
type Health struct {
	Status string `json:"status"`
}
