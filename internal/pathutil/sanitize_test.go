package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"relative path", "A/b.txt", filepath.Join("A", "b.txt")},
		{"leading slash", "/evil.txt", "evil.txt"},
		{"parent traversal", "./path/../evil.txt", "evil.txt"},
		{"double traversal", "../../etc/passwd", filepath.Join("etc", "passwd")},
		{"windows drive", `C:\Users\x\file.txt`, filepath.Join("Users", "x", "file.txt")},
		{"backslashes", `A\sub\c.bin`, filepath.Join("A", "sub", "c.bin")},
		{"bare dot", ".", ""},
		{"walk root marker", "A/.", "A"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"/evil.txt",
		"./path/../evil.txt",
		`C:\Users\x\file.txt`,
		"A/sub/c.bin",
		"../../../etc/passwd",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		assert.Equal(t, once, twice, "Sanitize not idempotent for %q", in)
	}
}

func TestSanitizeNeverEscapesRoot(t *testing.T) {
	// Invariant 4: no sanitized path should contain ".." segments.
	malicious := []string{
		"../evil.txt",
		"a/../../b",
		"a/b/../../../c",
	}
	for _, in := range malicious {
		got := Sanitize(in)
		assert.NotContains(t, got, "..")
	}
}

func TestUnderRoot(t *testing.T) {
	root := filepath.Join("save", "root")
	assert.Equal(t, filepath.Join(root, "a.txt"), UnderRoot(root, "a.txt"))
	already := filepath.Join(root, "a.txt")
	assert.Equal(t, already, UnderRoot(root, already))
	assert.Equal(t, "a.txt", UnderRoot("", "a.txt"))
}
