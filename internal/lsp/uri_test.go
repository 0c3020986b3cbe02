package lsp

import (
	"runtime"
	"testing"
)

func TestURIToPathAndBackRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("path round-trip assertions target POSIX-style paths")
	}
	uri := "file:///tmp/example.log"
	path := uriToPath(uri)
	if path != "/tmp/example.log" {
		t.Errorf("uriToPath(%q) = %q, want /tmp/example.log", uri, path)
	}
	back := pathToURI(path)
	if back != uri {
		t.Errorf("pathToURI(%q) = %q, want %q", path, back, uri)
	}
}

func TestURIToPathRejectsNonFileScheme(t *testing.T) {
	if got := uriToPath("https://example.com/a.log"); got != "" {
		t.Errorf("uriToPath(non-file scheme) = %q, want empty", got)
	}
}

func TestURIToPathEmpty(t *testing.T) {
	if got := uriToPath(""); got != "" {
		t.Errorf("uriToPath(\"\") = %q, want empty", got)
	}
	if got := pathToURI(""); got != "" {
		t.Errorf("pathToURI(\"\") = %q, want empty", got)
	}
}
