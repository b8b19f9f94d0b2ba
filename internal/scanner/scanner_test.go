package scanner

import (
	"strings"
	"testing"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

func testScanner() *Scanner {
	return New(&common.ScannerConfig{
		ForbiddenModules: []string{
			"os", "subprocess", "shutil", "socket", "requests",
			"urllib", "pickle", "sys", "importlib", "pathlib", "ftplib",
		},
		ForbiddenCalls: []string{
			"exec", "eval", "compile", "open", "input", "__import__", "breakpoint",
		},
	})
}

func TestScanner_CleanScript(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("print('hi')\n"))
	if err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}
}

func TestScanner_ForbiddenImport(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("import os\nprint(1)\n"))
	if err == nil {
		t.Fatal("expected violation")
	}
	if err.Error() != "Security Violation: Import 'os' is forbidden." {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestScanner_ForbiddenImportFrom(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("from subprocess import Popen\n"))
	if err == nil {
		t.Fatal("expected violation")
	}
	if !strings.Contains(err.Error(), "'subprocess' is forbidden") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestScanner_ForbiddenDottedImport(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("import os.path\n"))
	if err == nil {
		t.Fatal("expected violation for dotted import of forbidden top-level module")
	}
}

func TestScanner_ForbiddenSecondNameInMultiImport(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("import math, os\n"))
	if err == nil {
		t.Fatal("expected violation for forbidden second module in a multi-name import")
	}
	if !strings.Contains(err.Error(), "'os' is forbidden") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestScanner_MultiImportCleanWhenNoneForbidden(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("import math, json\n"))
	if err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}
}

func TestScanner_SyntaxError(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("print(\n"))
	if err == nil {
		t.Fatal("expected syntax violation")
	}
	if !strings.HasPrefix(err.Error(), "Syntax Error") {
		t.Errorf("expected message to start with 'Syntax Error', got %q", err.Error())
	}
}

func TestScanner_ForbiddenCall(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("eval('1+1')\n"))
	if err == nil {
		t.Fatal("expected violation")
	}
	if !strings.Contains(err.Error(), "Call to 'eval' is forbidden") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestScanner_MethodCallNotFlagged(t *testing.T) {
	s := testScanner()
	// thing.open() is an attribute access, not a bare-identifier call.
	err := s.Scan([]byte("x = thing.open()\n"))
	if err != nil {
		t.Fatalf("expected no violation for method call, got %v", err)
	}
}

func TestScanner_MultipleViolationsConcatenated(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("import os\nimport socket\n"))
	if err == nil {
		t.Fatal("expected violation")
	}
	lines := strings.Split(err.Error(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 newline-joined violations, got %d: %q", len(lines), err.Error())
	}
}

func TestScanner_UnterminatedString(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("x = 'unterminated\n"))
	if err == nil {
		t.Fatal("expected syntax violation")
	}
	if !strings.HasPrefix(err.Error(), "Syntax Error") {
		t.Errorf("expected message to start with 'Syntax Error', got %q", err.Error())
	}
}

func TestScanner_CleanScriptWithAllowedImports(t *testing.T) {
	s := testScanner()
	err := s.Scan([]byte("import math\nimport json\nprint(math.pi)\n"))
	if err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}
}
