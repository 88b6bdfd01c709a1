package scanner

import (
	"strings"
)

// Finding is one infected file reported by clamscan.
type Finding struct {
	Path      string
	Signature string
}

// ParseLine parses one clamscan output line of the form
//
//	/home/u/bad.exe: Eicar-Test-Signature FOUND
//
// and reports whether the line was a finding. "OK", "ERROR" and summary
// lines are not findings.
func ParseLine(line string) (Finding, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasSuffix(line, " FOUND") {
		return Finding{}, false
	}
	body := strings.TrimSuffix(line, " FOUND")

	// The path may itself contain ": "; the signature never does, so split
	// on the last separator.
	idx := strings.LastIndex(body, ": ")
	if idx < 0 {
		return Finding{}, false
	}
	path := body[:idx]
	sig := body[idx+2:]
	if path == "" || sig == "" {
		return Finding{}, false
	}
	return Finding{Path: path, Signature: sig}, true
}

// scannedFile reports whether the line is a per-file result line (FOUND, OK
// or ERROR), which is what drives the progress percentage.
func scannedFile(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasSuffix(line, " FOUND") ||
		strings.HasSuffix(line, ": OK") ||
		strings.HasSuffix(line, ": ERROR")
}
