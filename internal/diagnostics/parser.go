package diagnostics

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// diagnosticLine matches swiftc's textual diagnostic format:
//
//	file:line:column: severity: message
//
// Code excerpts and fix-it caret lines do not match and are skipped.
var diagnosticLine = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s+(error|warning|note|remark):\s+(.+)$`)

// Parser extracts diagnostics from compiler output incrementally.
//
// Feed lines as they stream in via ParseLine and collect the result
// with Diagnostics. Note lines attach to the preceding error or
// warning as related information; a note with no preceding primary
// diagnostic is dropped. Unparseable lines are skipped silently.
//
// Parser is not safe for concurrent use; each compiler run gets its
// own instance.
type Parser struct {
	cwd   string
	diags []Diagnostic
}

// NewParser creates a parser. Relative file paths in the output are
// resolved against cwd.
func NewParser(cwd string) *Parser {
	return &Parser{cwd: cwd}
}

// ParseLine consumes one line of compiler output.
func (p *Parser) ParseLine(line string) {
	matches := diagnosticLine.FindStringSubmatch(line)
	if matches == nil {
		return
	}

	path := p.resolvePath(matches[1])
	lineNum, err := strconv.Atoi(matches[2])
	if err != nil || lineNum < 1 {
		return
	}
	colNum, err := strconv.Atoi(matches[3])
	if err != nil || colNum < 1 {
		return
	}
	message := strings.TrimSpace(matches[5])
	if message == "" {
		return
	}

	// swiftc positions are 1-based.
	pos := Position{Line: lineNum - 1, Character: colNum - 1}
	rng := Range{Start: pos, End: pos}

	kind := matches[4]
	if kind == "note" {
		if len(p.diags) == 0 {
			return
		}
		last := &p.diags[len(p.diags)-1]
		last.Related = append(last.Related, RelatedInformation{
			Path:    path,
			Range:   rng,
			Message: message,
		})
		return
	}

	p.diags = append(p.diags, Diagnostic{
		Path:     path,
		Range:    rng,
		Severity: parseSwiftcSeverity(kind),
		Message:  message,
		Origin:   OriginSwiftc,
	})
}

// Diagnostics returns the accumulated diagnostics.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diags
}

// ByPath groups the accumulated diagnostics by file path.
func (p *Parser) ByPath() map[string][]Diagnostic {
	out := make(map[string][]Diagnostic)
	for _, d := range p.diags {
		out[d.Path] = append(out[d.Path], d)
	}
	return out
}

// ParseOutput parses complete compiler output in one call.
func ParseOutput(cwd, output string) []Diagnostic {
	p := NewParser(cwd)
	for _, line := range strings.Split(output, "\n") {
		p.ParseLine(line)
	}
	return p.Diagnostics()
}

func (p *Parser) resolvePath(path string) string {
	if filepath.IsAbs(path) || p.cwd == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(p.cwd, path)
}

func parseSwiftcSeverity(s string) Severity {
	switch s {
	case "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	default:
		// remark
		return SeverityInformation
	}
}
