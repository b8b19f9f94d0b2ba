// Package scanner implements the static pre-filter (C5): a source-level
// token walk over Python source that rejects forbidden imports and calls
// without executing the artifact. No Python AST library exists anywhere
// in this module's dependency stack, so the walk is hand-rolled against
// the tokenizer in tokenizer.go — a deliberate, justified exception to
// this module's third-party-first rule.
package scanner

import (
	"fmt"
	"strings"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
)

// SecurityViolation describes one or more forbidden constructs found
// during a scan. Its Error() is the exact message persisted to Job.Logs.
type SecurityViolation struct {
	Message string
}

func (v *SecurityViolation) Error() string { return v.Message }

// Scanner implements interfaces.Scanner against configured forbidden sets.
type Scanner struct {
	forbiddenModules map[string]struct{}
	forbiddenCalls   map[string]struct{}
}

// New builds a Scanner from configuration.
func New(cfg *common.ScannerConfig) *Scanner {
	modules := make(map[string]struct{}, len(cfg.ForbiddenModules))
	for _, m := range cfg.ForbiddenModules {
		modules[m] = struct{}{}
	}
	calls := make(map[string]struct{}, len(cfg.ForbiddenCalls))
	for _, c := range cfg.ForbiddenCalls {
		calls[c] = struct{}{}
	}
	return &Scanner{forbiddenModules: modules, forbiddenCalls: calls}
}

// Scan walks source and returns a *SecurityViolation describing every
// forbidden construct found, newline-joined; nil if none. A lexical parse
// failure is itself reported as a violation — a syntactically invalid
// script cannot be proven safe, so it is rejected rather than executed.
func (s *Scanner) Scan(source []byte) error {
	tz := newTokenizer(source)
	tokens, err := tz.tokenize()
	if err != nil {
		return &SecurityViolation{Message: err.Error()}
	}

	var violations []string
	lines := splitLogicalLines(tokens)

	for _, line := range lines {
		violations = append(violations, s.checkImport(line)...)
	}
	violations = append(violations, s.checkCalls(tokens)...)

	if len(violations) == 0 {
		return nil
	}
	return &SecurityViolation{Message: strings.Join(violations, "\n")}
}

// splitLogicalLines groups tokens between NEWLINE markers.
func splitLogicalLines(tokens []token) [][]token {
	var lines [][]token
	var cur []token
	for _, t := range tokens {
		if t.kind == tokNewline {
			if len(cur) > 0 {
				lines = append(lines, cur)
				cur = nil
			}
			continue
		}
		if t.kind == tokEOF {
			break
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

// checkImport inspects one logical line for `import X[.Y...] [as ...], ...`
// or `from X[.Y...] import ...` and reports a violation for every forbidden
// top-level module name found.
func (s *Scanner) checkImport(line []token) []string {
	if len(line) == 0 || line[0].kind != tokName {
		return nil
	}

	switch line[0].text {
	case "import":
		return s.checkImportNames(line[1:])
	case "from":
		return s.checkFromImport(line[1:])
	default:
		return nil
	}
}

// checkImportNames handles `import X[.Y] [as Z], A[.B] [as C], ...`: each
// comma-separated segment names its own top-level module, matching the
// per-alias walk a Python AST import visitor performs over node.names.
func (s *Scanner) checkImportNames(rest []token) []string {
	var violations []string
	for _, segment := range splitOnComma(rest) {
		if len(segment) == 0 || segment[0].kind != tokName {
			continue
		}
		violations = append(violations, s.violationForModule(segment[0].text)...)
	}
	return violations
}

// checkFromImport handles `from X[.Y] import ...`: only X's top-level name
// is a module; the names after `import` are attributes of X, not modules.
func (s *Scanner) checkFromImport(rest []token) []string {
	if len(rest) == 0 || rest[0].kind != tokName {
		return nil
	}
	return s.violationForModule(rest[0].text)
}

func (s *Scanner) violationForModule(top string) []string {
	if _, forbidden := s.forbiddenModules[top]; forbidden {
		return []string{fmt.Sprintf("Security Violation: Import '%s' is forbidden.", top)}
	}
	return nil
}

// splitOnComma splits tokens into segments divided by top-level "," operators.
func splitOnComma(tokens []token) [][]token {
	var segments [][]token
	var cur []token
	for _, t := range tokens {
		if t.kind == tokOp && t.text == "," {
			segments = append(segments, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	segments = append(segments, cur)
	return segments
}

// checkCalls scans the full token stream for a bare identifier directly
// followed by '(' that is not itself preceded by '.' (a method call on an
// arbitrary object is not a bare-identifier call).
func (s *Scanner) checkCalls(tokens []token) []string {
	var violations []string
	seen := make(map[string]bool)

	for i, t := range tokens {
		if t.kind != tokName {
			continue
		}
		if _, forbidden := s.forbiddenCalls[t.text]; !forbidden {
			continue
		}
		if i > 0 && tokens[i-1].kind == tokOp && tokens[i-1].text == "." {
			continue
		}
		if i+1 >= len(tokens) || tokens[i+1].kind != tokOp || tokens[i+1].text != "(" {
			continue
		}
		if seen[t.text] {
			continue
		}
		seen[t.text] = true
		violations = append(violations, fmt.Sprintf("Security Violation: Call to '%s' is forbidden.", t.text))
	}
	return violations
}

var _ interfaces.Scanner = (*Scanner)(nil)
