package diagnostics

// MergeMode governs how diagnostics from the two origins combine into
// one collection.
type MergeMode int

const (
	// MergeKeepAll keeps entries from both origins, even logically
	// identical ones. It is also the fallback for unrecognized
	// configuration, so diagnostics are never silently lost.
	MergeKeepAll MergeMode = iota

	// MergeOnlySwiftc stores exclusively compiler-parsed entries;
	// language-server batches are ignored and any stored
	// language-server entries are pruned immediately.
	MergeOnlySwiftc

	// MergeOnlySourceKit is the mirror of MergeOnlySwiftc.
	MergeOnlySourceKit

	// MergeKeepSwiftc keeps both origins but drops language-server
	// entries that duplicate a compiler entry.
	MergeKeepSwiftc

	// MergeKeepSourceKit keeps both origins but drops compiler
	// entries that duplicate a language-server entry.
	MergeKeepSourceKit
)

// String returns the configuration name of the mode.
func (m MergeMode) String() string {
	switch m {
	case MergeOnlySwiftc:
		return "onlySwiftc"
	case MergeOnlySourceKit:
		return "onlySourceKit"
	case MergeKeepSwiftc:
		return "keepSwiftc"
	case MergeKeepSourceKit:
		return "keepSourceKit"
	default:
		return "keepAll"
	}
}

// ParseMergeMode parses a configuration value. Unrecognized values
// fall back to MergeKeepAll.
func ParseMergeMode(s string) MergeMode {
	switch s {
	case "onlySwiftc":
		return MergeOnlySwiftc
	case "onlySourceKit":
		return MergeOnlySourceKit
	case "keepSwiftc":
		return MergeKeepSwiftc
	case "keepSourceKit":
		return MergeKeepSourceKit
	default:
		return MergeKeepAll
	}
}

// includes reports whether the mode stores entries from the origin at
// all.
func (m MergeMode) includes(o Origin) bool {
	switch m {
	case MergeOnlySwiftc:
		return o == OriginSwiftc
	case MergeOnlySourceKit:
		return o == OriginSourceKit
	default:
		return true
	}
}

// preferred returns the origin whose entries win a duplicate, and
// whether the mode deduplicates at all.
func (m MergeMode) preferred() (Origin, bool) {
	switch m {
	case MergeKeepSwiftc:
		return OriginSwiftc, true
	case MergeKeepSourceKit:
		return OriginSourceKit, true
	default:
		return 0, false
	}
}
