// Package diagnostics reconciles diagnostics from two independently
// timed producers, the compiler's textual output and the language
// server's publish channel, into one de-duplicated, stale-pruned
// collection per document.
package diagnostics

import (
	"strings"
)

// DocumentURI identifies a document, in file:// form.
type DocumentURI string

// FilePathToURI converts an absolute file path to a DocumentURI.
func FilePathToURI(path string) DocumentURI {
	return DocumentURI("file://" + path)
}

// URIToFilePath converts a DocumentURI back to a file path.
func URIToFilePath(uri DocumentURI) string {
	return strings.TrimPrefix(string(uri), "file://")
}

// Severity is the diagnostic severity, LSP-numbered: lower is more
// severe.
type Severity int

const (
	// SeverityError is an error.
	SeverityError Severity = 1
	// SeverityWarning is a warning.
	SeverityWarning Severity = 2
	// SeverityInformation is informational.
	SeverityInformation Severity = 3
	// SeverityHint is a hint.
	SeverityHint Severity = 4
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Origin tags which producer emitted a diagnostic.
type Origin int

const (
	// OriginSwiftc marks diagnostics parsed from compiler output.
	OriginSwiftc Origin = iota
	// OriginSourceKit marks diagnostics pushed by the language server.
	OriginSourceKit
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginSwiftc:
		return "swiftc"
	case OriginSourceKit:
		return "sourcekit"
	default:
		return "unknown"
	}
}

// Position is a zero-based line/character location.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open region between two positions.
type Range struct {
	Start Position
	End   Position
}

// RelatedInformation is a secondary location attached to a diagnostic,
// such as a compiler note.
type RelatedInformation struct {
	Path    string
	Range   Range
	Message string
}

// Diagnostic is one reported issue.
type Diagnostic struct {
	// Path is the file the issue was reported against.
	Path string

	// Range locates the issue. Producers disagree on extents (a
	// point vs a token span); only the start participates in
	// deduplication.
	Range Range

	// Severity classifies the issue.
	Severity Severity

	// Message is the issue text.
	Message string

	// Code is an optional producer-specific code.
	Code string

	// Origin tags the producer.
	Origin Origin

	// Related holds secondary locations, such as notes.
	Related []RelatedInformation
}

// dedupKey identifies a diagnostic for cross-origin deduplication.
// Origin and range extent are deliberately excluded: a point location
// from one producer and a full token span from the other at the same
// start describe the same issue, as do messages differing only in
// case.
type dedupKey struct {
	path     string
	line     int
	column   int
	message  string
	severity Severity
}

// key returns the diagnostic's deduplication key.
func (d Diagnostic) key() dedupKey {
	return dedupKey{
		path:     d.Path,
		line:     d.Range.Start.Line,
		column:   d.Range.Start.Character,
		message:  strings.ToLower(d.Message),
		severity: d.Severity,
	}
}

// valid reports whether the entry is well-formed enough to store.
// Malformed entries are dropped silently, never aborting a batch.
func (d Diagnostic) valid() bool {
	if d.Message == "" {
		return false
	}
	if d.Range.Start.Line < 0 || d.Range.Start.Character < 0 {
		return false
	}
	switch d.Severity {
	case SeverityError, SeverityWarning, SeverityInformation, SeverityHint:
		return true
	default:
		return false
	}
}
