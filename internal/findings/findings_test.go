package findings

import (
	"strings"
	"testing"
)

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"error", SeverityError, false},
		{"warning", SeverityWarning, false},
		{"warn", SeverityWarning, false},
		{"info", SeverityInfo, false},
		{"", SeverityInfo, false},
		{"fatal", "", true},
	}
	for _, tc := range cases {
		got, err := ParseSeverity(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSeverity(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSeverity(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSeverity_AtLeast(t *testing.T) {
	if !SeverityError.AtLeast(SeverityInfo) {
		t.Error("error should be at least info")
	}
	if SeverityInfo.AtLeast(SeverityWarning) {
		t.Error("info should not be at least warning")
	}
	if !SeverityWarning.AtLeast(SeverityWarning) {
		t.Error("warning should be at least warning")
	}
}

func TestFinding_String(t *testing.T) {
	f := Finding{
		Code:     "uncached-view",
		Severity: SeverityError,
		Message:  "view runs queries without caching",
		File:     "blog/views.py",
		Line:     12,
	}
	got := f.String()
	if !strings.HasPrefix(got, "[ERROR] uncached-view:") {
		t.Errorf("Unexpected prefix: %s", got)
	}
	if !strings.HasSuffix(got, "(blog/views.py:12)") {
		t.Errorf("Unexpected suffix: %s", got)
	}

	// Settings-level findings have no file anchor.
	f2 := Finding{Code: "no-cache-backend", Severity: SeverityInfo, Message: "m"}
	if strings.Contains(f2.String(), "(") {
		t.Errorf("File-less finding should have no location: %s", f2.String())
	}
}

func TestSort(t *testing.T) {
	fs := []Finding{
		{File: "b.py", Line: 5, Code: "x"},
		{File: "a.py", Line: 9, Code: "x"},
		{File: "a.py", Line: 2, Code: "y"},
		{File: "a.py", Line: 2, Code: "x", Ref: "py:a.py:two"},
		{File: "a.py", Line: 2, Code: "x", Ref: "py:a.py:one"},
	}
	Sort(fs)

	wantRefs := []string{"py:a.py:one", "py:a.py:two", "", "", ""}
	wantFiles := []string{"a.py", "a.py", "a.py", "a.py", "b.py"}
	for i := range fs {
		if fs[i].File != wantFiles[i] {
			t.Errorf("pos %d: file %s, want %s", i, fs[i].File, wantFiles[i])
		}
		if fs[i].Ref != wantRefs[i] {
			t.Errorf("pos %d: ref %q, want %q", i, fs[i].Ref, wantRefs[i])
		}
	}
}

func TestFilters(t *testing.T) {
	fs := []Finding{
		{Code: "a", App: "blog", Severity: SeverityError},
		{Code: "b", App: "shop", Severity: SeverityWarning},
		{Code: "c", App: "blog", Severity: SeverityInfo},
	}

	blog := FilterApp(fs, "blog")
	if len(blog) != 2 {
		t.Errorf("FilterApp: got %d, want 2", len(blog))
	}
	if got := FilterApp(fs, ""); len(got) != 3 {
		t.Errorf("Empty app filter should pass everything, got %d", len(got))
	}

	warnUp := FilterSeverity(fs, SeverityWarning)
	if len(warnUp) != 2 {
		t.Errorf("FilterSeverity: got %d, want 2", len(warnUp))
	}

	if !HasErrors(fs) {
		t.Error("Expected errors present")
	}
	if HasErrors(fs[1:]) {
		t.Error("Expected no errors in tail")
	}

	counts := CountBySeverity(fs)
	if counts[SeverityError] != 1 || counts[SeverityWarning] != 1 || counts[SeverityInfo] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestKey_IgnoresLine(t *testing.T) {
	a := Finding{Code: "x", File: "f.py", Line: 1, Ref: "py:f.py:v"}
	b := Finding{Code: "x", File: "f.py", Line: 99, Ref: "py:f.py:v"}
	if a.Key() != b.Key() {
		t.Error("Key should not include the line number")
	}
}
