package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestVocabFetchCmd(t *testing.T) {
	scope := initLibrary(t)
	path := scope.VocabPath("vocab.txt")
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testMerges))
	}))
	defer srv.Close()

	out, err := runRoot(t, nil, "", "vocab", "fetch", "--url", srv.URL)
	if err != nil {
		t.Fatalf("vocab fetch: %v", err)
	}
	if !strings.Contains(out, "Vocabulary ready") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("vocabulary not written: %v", err)
	}
}

func TestVocabFetchCmdRejectsGarbage(t *testing.T) {
	scope := initLibrary(t)
	path := scope.VocabPath("vocab.txt")
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#version\nnot a merge line\n"))
	}))
	defer srv.Close()

	if _, err := runRoot(t, nil, "", "vocab", "fetch", "--url", srv.URL); err == nil {
		t.Error("expected error for malformed vocabulary")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("malformed vocabulary was kept")
	}
}

func TestVocabInfoCmd(t *testing.T) {
	initLibrary(t)

	out, err := runRoot(t, nil, "", "vocab", "info")
	if err != nil {
		t.Fatalf("vocab info: %v", err)
	}
	for _, want := range []string{"Vocabulary size: 518", "Context length:  77", "Markers:         516 517"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
