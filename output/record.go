package output

import "unravel/result"

// SchemaVersion is written into every persisted document. Readers should
// reject documents with a different major version.
const SchemaVersion = "1.0"

// Record is the per-content result document stored as results/<sha256>.
type Record struct {
	SchemaVersion string            `json:"schema_version"`
	SHA256        string            `json:"sha256"`
	Hashes        map[string]string `json:"hashes"`
	FuzzyHashes   map[string]string `json:"fuzzy_hashes,omitempty"`
	Labels        []string          `json:"labels"`
	Size          int64             `json:"size"`
	Parser        string            `json:"parser,omitempty"`
	MimeType      string            `json:"mime_type,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Claims        []result.Claim    `json:"claims,omitempty"`
}

// RecordFromOutcome builds the stored document for a published outcome.
func RecordFromOutcome(o *result.Outcome) *Record {
	return &Record{
		SchemaVersion: SchemaVersion,
		SHA256:        o.Hash,
		Hashes:        o.Hashes,
		FuzzyHashes:   o.FuzzyHashes,
		Labels:        o.Labels,
		Size:          o.Size,
		Parser:        o.Parser,
		MimeType:      o.MimeType,
		Metadata:      o.Metadata,
		Claims:        o.Claims,
	}
}

// Metrics summarises a session.
type Metrics struct {
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Inputs        int64  `json:"inputs"`
	FilesRecorded int64  `json:"files_recorded"`
	FilesScanned  int64  `json:"files_scanned"`
	BytesScanned  int64  `json:"bytes_scanned"`
	UniqueContent int64  `json:"unique_content"`
	DedupHits     int64  `json:"dedup_hits"`
	Claims        int64  `json:"claims"`
	Carves        int64  `json:"carves"`
	Unscanned     int64  `json:"unscanned"`
	Unparsed      int64  `json:"unparsed"`
	Known         int64  `json:"known"`
	ParserFaults  int64  `json:"parser_faults"`
	Cancelled     bool   `json:"cancelled,omitempty"`
}

// TreeEntry is one file of the scan tree document.
type TreeEntry struct {
	Labels   []string          `json:"labels"`
	Hash     map[string]string `json:"hash"`
	Parent   string            `json:"parent,omitempty"`
	Offset   *int64            `json:"offset,omitempty"`
	Size     int64             `json:"size"`
	Parser   string            `json:"parser,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Claims   []result.Claim    `json:"claims,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Data     string            `json:"data,omitempty"`
}

// TreeDocument is the scantree.json snapshot of a session.
type TreeDocument struct {
	SchemaVersion string               `json:"schema_version"`
	SessionID     string               `json:"session_id"`
	Version       string               `json:"version"`
	Inputs        []string             `json:"inputs"`
	Settings      map[string]any       `json:"settings"`
	Metrics       Metrics              `json:"metrics"`
	Files         map[string]TreeEntry `json:"files"`
}

// EntryFromResult converts a tree node. data is where the content lives:
// relative to the unpack directory for unpacked files, absolute for inputs.
func EntryFromResult(fr *result.FileResult, data string) TreeEntry {
	entry := TreeEntry{
		Labels:   fr.Labels,
		Hash:     fr.Hashes,
		Parent:   fr.Parent,
		Size:     fr.Size,
		Parser:   fr.Parser,
		MimeType: fr.MimeType,
		Claims:   fr.Claims,
		Data:     data,
	}
	if fr.Parent == "" {
		entry.Metadata = fr.Metadata
	}
	if fr.Extent != nil {
		off := fr.Extent.Offset
		entry.Offset = &off
	}
	return entry
}
