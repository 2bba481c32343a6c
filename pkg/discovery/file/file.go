// Package file reads WKA seed references from a seeds file, with an optional
// environment variable taking precedence.
package file

import (
    "bufio"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog"

    "github.com/amirimatin/cluster-probe/pkg/discovery"
    "github.com/amirimatin/cluster-probe/pkg/internal/logutil"
)

// Options configures file-based seed discovery.
type Options struct {
    // Path to a file (or glob) with one seed per line or comma-separated
    // entries; lines starting with '#' are comments.
    Path string
    // Env names a variable whose non-empty value overrides the file.
    Env string
    // Refresh bounds how long a read is reused; defaults to 5s.
    Refresh time.Duration
    Logger  *zerolog.Logger
}

type seedsFile struct {
    opts  Options
    log   *zerolog.Logger
    mu    sync.Mutex
    read  time.Time
    mtime time.Time
    cache []string
}

// New returns a Discovery backed by a seeds file.
func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    return &seedsFile{opts: opts, log: logutil.Named(opts.Logger, "seeds-file")}
}

func (f *seedsFile) Seeds() []string {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(f.opts.Env)); v != "" {
            return discovery.Static(v).Seeds()
        }
    }
    if f.opts.Path == "" { return nil }
    now := time.Now()
    if st, err := os.Stat(f.opts.Path); err == nil {
        if st.ModTime().After(f.mtime) || now.Sub(f.read) >= f.opts.Refresh {
            f.cache = f.load(f.opts.Path)
            f.read, f.mtime = now, st.ModTime()
        }
        return append([]string(nil), f.cache...)
    }
    matches, _ := filepath.Glob(f.opts.Path)
    if len(matches) == 0 {
        logutil.Debugf(f.log, "seeds file %s not found, keeping %d cached seeds", f.opts.Path, len(f.cache))
        return append([]string(nil), f.cache...)
    }
    var all []string
    for _, m := range matches { all = append(all, f.load(m)...) }
    f.cache = uniqueSorted(all)
    f.read = now
    return append([]string(nil), f.cache...)
}

func (f *seedsFile) load(path string) []string {
    fh, err := os.Open(path)
    if err != nil {
        logutil.Warnf(f.log, "open seeds file %s: %v", path, err)
        return nil
    }
    defer fh.Close()
    var seeds []string
    sc := bufio.NewScanner(fh)
    for sc.Scan() {
        line := strings.TrimSpace(sc.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        seeds = append(seeds, discovery.Static(line).Seeds()...)
    }
    if err := sc.Err(); err != nil {
        logutil.Warnf(f.log, "read seeds file %s: %v", path, err)
        return nil
    }
    return uniqueSorted(seeds)
}

func uniqueSorted(in []string) []string {
    set := make(map[string]struct{}, len(in))
    out := make([]string, 0, len(in))
    for _, s := range in {
        if _, ok := set[s]; ok { continue }
        set[s] = struct{}{}
        out = append(out, s)
    }
    sort.Strings(out)
    return out
}
