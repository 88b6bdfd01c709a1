package scanner

import "testing"

func TestParseLineFindings(t *testing.T) {
	tests := []struct {
		line     string
		wantPath string
		wantSig  string
		ok       bool
	}{
		{"/home/u/bad.exe: Eicar-Test-Signature FOUND", "/home/u/bad.exe", "Eicar-Test-Signature", true},
		{"/home/u/docs/ok.txt: OK", "", "", false},
		{"/home/u/locked.bin: ERROR", "", "", false},
		{"Infected files: 3", "", "", false},
		{"", "", "", false},
		{"FOUND", "", "", false},
		// A path containing ": " splits on the last separator.
		{"/home/u/odd: name.txt: Win.Test.EICAR_HDB-1 FOUND", "/home/u/odd: name.txt", "Win.Test.EICAR_HDB-1", true},
	}

	for _, tt := range tests {
		got, ok := ParseLine(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.Path != tt.wantPath || got.Signature != tt.wantSig {
			t.Errorf("ParseLine(%q) = %+v, want path %q sig %q", tt.line, got, tt.wantPath, tt.wantSig)
		}
	}
}

func TestScannedFile(t *testing.T) {
	for _, line := range []string{
		"/a/b: OK",
		"/a/b: Eicar-Test-Signature FOUND",
		"/a/b: ERROR",
	} {
		if !scannedFile(line) {
			t.Errorf("scannedFile(%q) = false", line)
		}
	}
	for _, line := range []string{
		"Scanned files: 10",
		"----------- SCAN SUMMARY -----------",
		"",
	} {
		if scannedFile(line) {
			t.Errorf("scannedFile(%q) = true", line)
		}
	}
}
