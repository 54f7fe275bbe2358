// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"archive/tar"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestHashFileDeterministic(t *testing.T) {
	t.Parallel()
	first := HashFile([]byte("diff --git a/main.go b/main.go\n"))
	second := HashFile([]byte("diff --git a/main.go b/main.go\n"))
	if first != second {
		t.Fatal("identical content produced different hashes")
	}
	if first == HashFile([]byte("other")) {
		t.Fatal("distinct content produced identical hashes")
	}
	if len(first.String()) != 64 {
		t.Fatalf("hash string length = %d, want 64", len(first.String()))
	}
}

func TestStoreWriteText(t *testing.T) {
	t.Parallel()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.WriteText("diff.patch", "patch body\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	content, err := store.Read("diff.patch")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content != "patch body\n" {
		t.Errorf("content = %q, want %q", content, "patch body\n")
	}
}

func TestStoreWriteJSON(t *testing.T) {
	t.Parallel()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.WriteJSON("scope.json", map[string]any{"summary": "add flag"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	content, err := store.Read("scope.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := "{\n  \"summary\": \"add flag\"\n}\n"
	if content != want {
		t.Errorf("content = %q, want %q", content, want)
	}
}

func TestStoreRejectsNestedNames(t *testing.T) {
	t.Parallel()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range []string{"", "sub/file.txt", "../escape.txt"} {
		if err := store.WriteText(name, "x"); err == nil {
			t.Errorf("WriteText(%q) succeeded, want error", name)
		}
	}
}

func TestStoreNames(t *testing.T) {
	t.Parallel()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range []string{"run_summary.json", "commands.log", "diff.patch"} {
		if err := store.WriteText(name, "x"); err != nil {
			t.Fatalf("WriteText(%q): %v", name, err)
		}
	}
	want := []string{"commands.log", "diff.patch", "run_summary.json"}
	if got := store.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestWriteManifest(t *testing.T) {
	t.Parallel()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.WriteText("diff.patch", "patch body\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if err := store.WriteText("commands.log", "{}\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if err := store.WriteManifest(); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	content, err := store.Read(ManifestName)
	if err != nil {
		t.Fatalf("Read manifest: %v", err)
	}
	var manifest map[string]struct {
		Size int64  `json:"size"`
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("manifest has %d entries, want 2: %v", len(manifest), manifest)
	}
	if _, ok := manifest[ManifestName]; ok {
		t.Error("manifest lists itself")
	}
	entry := manifest["diff.patch"]
	if entry.Size != int64(len("patch body\n")) {
		t.Errorf("diff.patch size = %d, want %d", entry.Size, len("patch body\n"))
	}
	if entry.Hash != HashFile([]byte("patch body\n")).String() {
		t.Errorf("diff.patch hash = %q, want %q", entry.Hash, HashFile([]byte("patch body\n")))
	}
}

func TestBundleRoundTrip(t *testing.T) {
	t.Parallel()
	source := t.TempDir()
	if err := os.MkdirAll(filepath.Join(source, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"run_summary.json": "{\"outcome\": \"success\"}\n",
		"nested/deep.log":  "line\n",
		"commands.log":     "",
	}
	for name, content := range files {
		path := filepath.Join(source, filepath.FromSlash(name))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	bundle := filepath.Join(t.TempDir(), "run.tar.zst")
	if err := Bundle(source, bundle); err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	extracted := t.TempDir()
	if err := Unbundle(bundle, extracted); err != nil {
		t.Fatalf("Unbundle: %v", err)
	}
	for name, want := range files {
		data, err := os.ReadFile(filepath.Join(extracted, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("reading extracted %s: %v", name, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}
}

func TestUnbundleRejectsEscapingPaths(t *testing.T) {
	t.Parallel()
	bundle := filepath.Join(t.TempDir(), "evil.tar.zst")
	file, err := os.Create(bundle)
	if err != nil {
		t.Fatal(err)
	}
	compressor, err := zstd.NewWriter(file)
	if err != nil {
		t.Fatal(err)
	}
	archive := tar.NewWriter(compressor)
	payload := []byte("escaped")
	header := &tar.Header{Name: "../evil.txt", Mode: 0o644, Size: int64(len(payload))}
	if err := archive.WriteHeader(header); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := archive.Close(); err != nil {
		t.Fatal(err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	err = Unbundle(bundle, t.TempDir())
	if err == nil {
		t.Fatal("Unbundle accepted an entry escaping the extraction directory")
	}
	if !strings.Contains(err.Error(), "escapes") {
		t.Errorf("error = %q, want mention of escape", err)
	}
}
