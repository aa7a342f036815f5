package buildinfo

import "testing"

func TestShort(t *testing.T) {
	defer func(v, c string) { Version, Commit = v, c }(Version, Commit)

	tests := []struct {
		version, commit, want string
	}{
		{"v1.2.0", "abc123", "v1.2.0"},
		{"dev", "abc123", "abc123"},
		{"", "unknown", "dev"},
	}
	for _, tt := range tests {
		Version, Commit = tt.version, tt.commit
		if got := Short(); got != tt.want {
			t.Fatalf("Short() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}
