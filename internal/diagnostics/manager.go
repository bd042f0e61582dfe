package diagnostics

import (
	"sort"
	"sync"
)

// Manager owns the per-document diagnostic collections.
//
// Each producer delivers full snapshots: a call replaces that origin's
// entire contribution for the document, mirroring how a compiler
// re-run or a publishDiagnostics notification each describe everything
// the producer currently believes. Contributions are stored per origin
// and merged on read. Under the keep modes, cross-origin duplicates
// are discarded at ingestion time: once the preferred origin reports
// an issue, the other origin's rendition is physically removed, so
// the preferred origin's later all-clear leaves nothing behind to
// resurface.
//
// Manager is safe for concurrent use. Consumers receive copies, never
// the stored slices.
type Manager struct {
	mu   sync.RWMutex
	mode MergeMode
	docs map[DocumentURI]*documentState

	onPublish func(uri DocumentURI, entries []Diagnostic)
}

// documentState tracks one document.
type documentState struct {
	// byOrigin holds each origin's current full contribution.
	byOrigin map[Origin][]Diagnostic

	// seqs is the last applied snapshot sequence per origin. A
	// snapshot with a sequence at or below it is stale and rejected,
	// so a late-arriving delivery cannot resurrect pruned entries.
	seqs map[Origin]uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMergeMode sets the initial merge mode.
func WithMergeMode(mode MergeMode) ManagerOption {
	return func(m *Manager) {
		m.mode = mode
	}
}

// WithPublishHandler sets the callback fired after every merge with
// the document's current merged entries.
func WithPublishHandler(fn func(uri DocumentURI, entries []Diagnostic)) ManagerOption {
	return func(m *Manager) {
		m.onPublish = fn
	}
}

// NewManager creates a diagnostics manager. The default mode is
// MergeKeepAll.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		mode: MergeKeepAll,
		docs: make(map[DocumentURI]*documentState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetMergeMode updates the merge mode. The new policy is evaluated on
// the next HandleDiagnostics call per document.
func (m *Manager) SetMergeMode(mode MergeMode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}

// MergeMode returns the current merge mode.
func (m *Manager) MergeMode() MergeMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// HandleDiagnostics replaces the origin's contribution for the
// document with the given full snapshot and publishes the merged
// result. Calls for a given (uri, origin) are applied in call order.
func (m *Manager) HandleDiagnostics(uri DocumentURI, origin Origin, entries []Diagnostic) {
	m.mu.Lock()
	st := m.doc(uri)
	seq := st.seqs[origin] + 1
	merged := m.applyLocked(uri, st, origin, seq, entries)
	m.mu.Unlock()

	m.publish(uri, merged)
}

// HandleSnapshot is HandleDiagnostics with an explicit producer
// sequence number. A snapshot whose sequence does not advance the
// origin's last applied sequence is stale and dropped without effect.
func (m *Manager) HandleSnapshot(uri DocumentURI, origin Origin, seq uint64, entries []Diagnostic) {
	m.mu.Lock()
	st := m.doc(uri)
	if seq <= st.seqs[origin] {
		m.mu.Unlock()
		return
	}
	merged := m.applyLocked(uri, st, origin, seq, entries)
	m.mu.Unlock()

	m.publish(uri, merged)
}

// Diagnostics returns a copy of the document's current merged entries.
func (m *Manager) Diagnostics(uri DocumentURI) []Diagnostic {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.docs[uri]
	if !ok {
		return nil
	}
	return m.mergeLocked(st)
}

// URIs returns the documents that currently store entries from the
// given origin, suppressed or not.
func (m *Manager) URIs(origin Origin) []DocumentURI {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var uris []DocumentURI
	for uri, st := range m.docs {
		if len(st.byOrigin[origin]) > 0 {
			uris = append(uris, uri)
		}
	}
	return uris
}

// Clear removes all stored diagnostics without publishing.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.docs = make(map[DocumentURI]*documentState)
	m.mu.Unlock()
}

// doc returns the state for a URI, creating it if needed.
// Caller holds m.mu.
func (m *Manager) doc(uri DocumentURI) *documentState {
	st, ok := m.docs[uri]
	if !ok {
		st = &documentState{
			byOrigin: make(map[Origin][]Diagnostic),
			seqs:     make(map[Origin]uint64),
		}
		m.docs[uri] = st
	}
	return st
}

// applyLocked applies a snapshot and returns the new merged view.
// Caller holds m.mu.
func (m *Manager) applyLocked(uri DocumentURI, st *documentState, origin Origin, seq uint64, entries []Diagnostic) []Diagnostic {
	st.seqs[origin] = seq

	// Exclusive modes prune the excluded origin's stored entries the
	// moment any call arrives, not merely going forward.
	for _, o := range []Origin{OriginSwiftc, OriginSourceKit} {
		if !m.mode.includes(o) {
			delete(st.byOrigin, o)
		}
	}

	if m.mode.includes(origin) {
		filtered := filterEntries(uri, origin, entries)

		// Under the keep modes duplicates are discarded here, not at
		// merge time. A suppressed duplicate left in storage would
		// resurface the moment the preferred origin clears its own
		// rendition of the issue.
		if pref, dedup := m.mode.preferred(); dedup {
			if origin == pref {
				discardSuppressed(st, otherOrigin(pref), filtered)
			} else {
				filtered = withoutDuplicates(filtered, st.byOrigin[pref])
			}
		}

		if len(filtered) == 0 {
			delete(st.byOrigin, origin)
		} else {
			st.byOrigin[origin] = filtered
		}
	}

	// The state outlives an empty collection: the per-origin sequence
	// numbers must survive so a late stale snapshot stays rejected.
	return m.mergeLocked(st)
}

// discardSuppressed removes stored entries of origin o that duplicate
// an incoming preferred-origin entry.
func discardSuppressed(st *documentState, o Origin, preferred []Diagnostic) {
	stored := st.byOrigin[o]
	if len(stored) == 0 || len(preferred) == 0 {
		return
	}

	seen := make(map[dedupKey]bool, len(preferred))
	for _, d := range preferred {
		seen[d.key()] = true
	}

	var kept []Diagnostic
	for _, d := range stored {
		if !seen[d.key()] {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		delete(st.byOrigin, o)
	} else {
		st.byOrigin[o] = kept
	}
}

// withoutDuplicates drops incoming entries that duplicate a stored
// preferred-origin entry.
func withoutDuplicates(incoming, preferred []Diagnostic) []Diagnostic {
	if len(incoming) == 0 || len(preferred) == 0 {
		return incoming
	}

	seen := make(map[dedupKey]bool, len(preferred))
	for _, d := range preferred {
		seen[d.key()] = true
	}

	var out []Diagnostic
	for _, d := range incoming {
		if !seen[d.key()] {
			out = append(out, d)
		}
	}
	return out
}

// otherOrigin returns the opposite producer.
func otherOrigin(o Origin) Origin {
	if o == OriginSwiftc {
		return OriginSourceKit
	}
	return OriginSwiftc
}

// filterEntries drops malformed entries and normalizes path and origin
// tags. One bad entry never aborts the batch.
func filterEntries(uri DocumentURI, origin Origin, entries []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range entries {
		if !d.valid() {
			continue
		}
		d.Origin = origin
		if d.Path == "" {
			d.Path = URIToFilePath(uri)
		}
		out = append(out, d)
	}
	return out
}

// mergeLocked derives the merged view under the current mode.
// Caller holds m.mu.
func (m *Manager) mergeLocked(st *documentState) []Diagnostic {
	swiftc := st.byOrigin[OriginSwiftc]
	sourcekit := st.byOrigin[OriginSourceKit]

	var merged []Diagnostic
	if pref, dedup := m.mode.preferred(); dedup {
		preferred, other := swiftc, sourcekit
		if pref == OriginSourceKit {
			preferred, other = sourcekit, swiftc
		}
		seen := make(map[dedupKey]bool, len(preferred))
		for _, d := range preferred {
			seen[d.key()] = true
			merged = append(merged, d)
		}
		for _, d := range other {
			if !seen[d.key()] {
				merged = append(merged, d)
			}
		}
	} else {
		if m.mode.includes(OriginSwiftc) {
			merged = append(merged, swiftc...)
		}
		if m.mode.includes(OriginSourceKit) {
			merged = append(merged, sourcekit...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Range.Start.Line != merged[j].Range.Start.Line {
			return merged[i].Range.Start.Line < merged[j].Range.Start.Line
		}
		if merged[i].Range.Start.Character != merged[j].Range.Start.Character {
			return merged[i].Range.Start.Character < merged[j].Range.Start.Character
		}
		return merged[i].Severity < merged[j].Severity
	})
	return merged
}

// publish invokes the publish handler with a defensive copy.
func (m *Manager) publish(uri DocumentURI, merged []Diagnostic) {
	m.mu.RLock()
	handler := m.onPublish
	m.mu.RUnlock()
	if handler == nil {
		return
	}

	entries := make([]Diagnostic, len(merged))
	copy(entries, merged)
	handler(uri, entries)
}
