package rest

import (
    "encoding/json"
    "strconv"
    "strings"
)

// JSON names used by the management REST API.
const (
    keyItems = "items"
    keyLinks = "links"
    keyRel   = "rel"
    keyHref  = "href"

    relMembers   = "members"
    relServices  = "services"
    relPartition = "partition"
    relSelf      = "self"
)

// doc is a decoded JSON object with lower-cased keys so attribute lookups
// ignore the server's casing.
type doc map[string]any

func decodeDoc(b []byte) (doc, error) {
    var raw map[string]any
    if err := json.Unmarshal(b, &raw); err != nil { return nil, err }
    return lower(raw), nil
}

func lower(in map[string]any) doc {
    out := make(doc, len(in))
    for k, v := range in { out[strings.ToLower(k)] = v }
    return out
}

func (d doc) str(keys ...string) string {
    for _, k := range keys {
        switch v := d[strings.ToLower(k)].(type) {
        case string:
            if v != "" { return v }
        case float64:
            return strconv.FormatFloat(v, 'f', -1, 64)
        case bool:
            return strconv.FormatBool(v)
        }
    }
    return ""
}

// num reads a number that may arrive as a JSON number or a string.
func (d doc) num(keys ...string) (int, bool) {
    for _, k := range keys {
        switch v := d[strings.ToLower(k)].(type) {
        case float64:
            return int(v), true
        case string:
            if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil { return i, true }
        }
    }
    return 0, false
}

func (d doc) numOr(def int, keys ...string) int {
    if v, ok := d.num(keys...); ok { return v }
    return def
}

func (d doc) flag(def bool, keys ...string) bool {
    for _, k := range keys {
        switch v := d[strings.ToLower(k)].(type) {
        case bool:
            return v
        case string:
            if b, err := strconv.ParseBool(v); err == nil { return b }
        }
    }
    return def
}

// items returns the entries of the "items" collection; absent or null is empty.
func (d doc) items() []doc {
    arr, _ := d[keyItems].([]any)
    out := make([]doc, 0, len(arr))
    for _, it := range arr {
        if m, ok := it.(map[string]any); ok { out = append(out, lower(m)) }
    }
    return out
}

// link returns the href of the first link with the given rel.
func (d doc) link(rel string) string {
    arr, _ := d[keyLinks].([]any)
    for _, it := range arr {
        m, ok := it.(map[string]any)
        if !ok { continue }
        l := lower(m)
        if strings.EqualFold(l.str(keyRel), rel) { return l.str(keyHref) }
    }
    return ""
}
