package diagnostics

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNoURI is returned when a publish payload carries no document URI.
var ErrNoURI = errors.New("publish payload has no uri")

// DecodePublish decodes the params of a textDocument/publishDiagnostics
// notification into language-server-origin diagnostics.
//
// Decoding is tolerant per entry: an entry with no message or a
// garbled range is dropped and the rest of the batch survives, per the
// drop-bad-entries-silently rule. An empty diagnostics array is a
// valid snapshot meaning "all clear".
func DecodePublish(params []byte) (DocumentURI, []Diagnostic, error) {
	uri := gjson.GetBytes(params, "uri")
	if !uri.Exists() || uri.String() == "" {
		return "", nil, ErrNoURI
	}

	docURI := DocumentURI(uri.String())
	path := URIToFilePath(docURI)

	var entries []Diagnostic
	gjson.GetBytes(params, "diagnostics").ForEach(func(_, item gjson.Result) bool {
		if d, ok := decodeEntry(path, item); ok {
			entries = append(entries, d)
		}
		return true
	})

	return docURI, entries, nil
}

// decodeEntry decodes one diagnostic object.
func decodeEntry(path string, item gjson.Result) (Diagnostic, bool) {
	message := item.Get("message").String()
	if message == "" {
		return Diagnostic{}, false
	}

	rng, ok := decodeRange(item.Get("range"))
	if !ok {
		return Diagnostic{}, false
	}

	severity := SeverityError
	if sev := item.Get("severity"); sev.Exists() {
		n := Severity(sev.Int())
		switch n {
		case SeverityError, SeverityWarning, SeverityInformation, SeverityHint:
			severity = n
		default:
			return Diagnostic{}, false
		}
	}

	d := Diagnostic{
		Path:     path,
		Range:    rng,
		Severity: severity,
		Message:  message,
		Code:     item.Get("code").String(),
		Origin:   OriginSourceKit,
	}

	item.Get("relatedInformation").ForEach(func(_, rel gjson.Result) bool {
		msg := rel.Get("message").String()
		relRange, ok := decodeRange(rel.Get("location.range"))
		if msg == "" || !ok {
			return true
		}
		relURI := rel.Get("location.uri").String()
		relPath := path
		if relURI != "" {
			relPath = URIToFilePath(DocumentURI(relURI))
		}
		d.Related = append(d.Related, RelatedInformation{
			Path:    relPath,
			Range:   relRange,
			Message: msg,
		})
		return true
	})

	return d, true
}

// decodeRange decodes an LSP range object.
func decodeRange(v gjson.Result) (Range, bool) {
	if !v.Exists() {
		return Range{}, false
	}

	start := v.Get("start")
	end := v.Get("end")
	if !start.Exists() {
		return Range{}, false
	}

	rng := Range{
		Start: Position{
			Line:      int(start.Get("line").Int()),
			Character: int(start.Get("character").Int()),
		},
	}
	if rng.Start.Line < 0 || rng.Start.Character < 0 {
		return Range{}, false
	}

	if end.Exists() {
		rng.End = Position{
			Line:      int(end.Get("line").Int()),
			Character: int(end.Get("character").Int()),
		}
	} else {
		rng.End = rng.Start
	}

	return rng, true
}
