package file

import (
    "os"
    "path/filepath"
    "testing"
    "time"
)

func TestEnvOverridesFile(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "wka.txt")
    if err := os.WriteFile(f, []byte("a:1\n"), 0o644); err != nil { t.Fatal(err) }

    const envName = "TEST_PROBE_WKA"
    t.Setenv(envName, "x:9,y:8")

    got := New(Options{Path: f, Env: envName}).Seeds()
    if len(got) != 2 || got[0] != "x:9" || got[1] != "y:8" {
        t.Fatalf("env override failed, got %#v", got)
    }
}

func TestCommentsAndCSVLines(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "wka.txt")
    body := "# seeds\n\nb:2, a:1\n  c:3  \na:1\n"
    if err := os.WriteFile(f, []byte(body), 0o644); err != nil { t.Fatal(err) }

    got := New(Options{Path: f}).Seeds()
    want := []string{"a:1", "b:2", "c:3"}
    if len(got) != len(want) {
        t.Fatalf("got %#v want %#v", got, want)
    }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("item %d: got %q want %q", i, got[i], want[i]) }
    }
}

func TestFileRefresh(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "wka.txt")
    if err := os.WriteFile(f, []byte("a:1\nb:2\n"), 0o644); err != nil { t.Fatal(err) }

    d := New(Options{Path: f, Refresh: 10 * time.Millisecond})
    if got := d.Seeds(); len(got) != 2 {
        t.Fatalf("unexpected initial seeds: %#v", got)
    }
    if err := os.WriteFile(f, []byte("c:3\n"), 0o644); err != nil { t.Fatal(err) }
    time.Sleep(20 * time.Millisecond)
    if got := d.Seeds(); len(got) != 1 || got[0] != "c:3" {
        t.Fatalf("expected refreshed seeds, got %#v", got)
    }
}

func TestGlobMergesFiles(t *testing.T) {
    dir := t.TempDir()
    if err := os.WriteFile(filepath.Join(dir, "a.seeds"), []byte("a:1\nb:2\n"), 0o644); err != nil { t.Fatal(err) }
    if err := os.WriteFile(filepath.Join(dir, "b.seeds"), []byte("b:2\nc:3\n"), 0o644); err != nil { t.Fatal(err) }

    got := New(Options{Path: filepath.Join(dir, "*.seeds")}).Seeds()
    if len(got) != 3 || got[0] != "a:1" || got[2] != "c:3" {
        t.Fatalf("got %#v", got)
    }
}

func TestMissingFileYieldsNothing(t *testing.T) {
    if got := New(Options{Path: filepath.Join(t.TempDir(), "none")}).Seeds(); len(got) != 0 {
        t.Fatalf("got %#v", got)
    }
}
