package cli

import (
    "bytes"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/spf13/cobra"
)

func execute(t *testing.T, args ...string) (string, error) {
    t.Helper()
    root := &cobra.Command{Use: "probectl", SilenceUsage: true, SilenceErrors: true}
    AddAll(root)
    var out bytes.Buffer
    root.SetOut(&out)
    root.SetErr(&out)
    root.SetArgs(args)
    err := root.Execute()
    return out.String(), err
}

func TestVersionCheck(t *testing.T) {
    out, err := execute(t, "version", "check", "14.1.1.0.0", "12.2.1.4.0")
    if err != nil || strings.TrimSpace(out) != "true" {
        t.Fatalf("got %q %v", out, err)
    }
    out, err = execute(t, "version", "check", "1.2", "2.1")
    if err == nil || !strings.HasPrefix(out, "false") {
        t.Fatalf("got %q %v", out, err)
    }
    if _, err := execute(t, "version", "check", "1"); err == nil {
        t.Fatalf("expected argument error")
    }
}

func TestResolveIPLiteral(t *testing.T) {
    out, err := execute(t, "resolve", "--wka", "10.1.2.3", "--wka-port", "9000")
    if err != nil { t.Fatalf("resolve: %v", err) }
    if !strings.Contains(out, "10.1.2.3:9000") {
        t.Fatalf("unexpected output %q", out)
    }
}

func TestResolveWithoutSeeds(t *testing.T) {
    if _, err := execute(t, "resolve", "--wka", ""); err == nil || !strings.Contains(err.Error(), "no seeds") {
        t.Fatalf("expected no seeds error, got %v", err)
    }
}

func TestCheckCommands(t *testing.T) {
    var seen []string
    ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        seen = append(seen, r.Method+" "+r.URL.Path)
        if r.URL.Path == "/ha" {
            w.WriteHeader(http.StatusBadRequest)
            _, _ = w.Write([]byte("unsafe: dist: endangered"))
            return
        }
        _, _ = w.Write([]byte("OK"))
    }))
    defer ts.Close()

    if out, err := execute(t, "probe", "ready", "--addr", ts.URL); err != nil || strings.TrimSpace(out) != "OK" {
        t.Fatalf("ready: %q %v", out, err)
    }
    out, err := execute(t, "probe", "ha", "--addr", ts.URL)
    if !errors.Is(err, ErrProbeFailed) || !strings.Contains(out, "endangered") {
        t.Fatalf("ha: %q %v", out, err)
    }
    if _, err := execute(t, "probe", "suspend", "dist", "--addr", ts.URL); err != nil {
        t.Fatalf("suspend: %v", err)
    }
    want := []string{"GET /ready", "GET /ha", "PUT /suspend/dist"}
    if strings.Join(seen, ",") != strings.Join(want, ",") {
        t.Fatalf("requests = %v, want %v", seen, want)
    }
    if _, err := execute(t, "probe", "ready", "extra", "--addr", ts.URL); err == nil {
        t.Fatalf("expected argument error")
    }
}
