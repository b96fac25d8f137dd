package extract

import "testing"

func TestIsPDF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"notes.pdf", true},
		{"NOTES.PDF", true},
		{"dir/lecture.Pdf", true},
		{"notes.txt", false},
		{"pdf", false},
		{"archive.pdf.zip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPDF(tt.path); got != tt.want {
			t.Errorf("IsPDF(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFromPDF_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := FromPDF("testdata/does-not-exist.pdf"); err == nil {
		t.Error("FromPDF() on a missing file should fail")
	}
}
