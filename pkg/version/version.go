// Package version compares dotted version strings such as "14.1.1.0.0" or
// image references like "registry/coherence:22.06.1-SNAPSHOT".
package version

import (
    "strconv"
    "strings"
)

// Groups is the number of numeric components that take part in comparisons.
const Groups = 5

// Version holds the numeric components of a parsed version string.
type Version [Groups]int

// Parse extracts up to five numeric groups separated by arbitrary non-digit
// characters. Missing groups are zero and anything after the fifth group is
// ignored. A prefix up to the last ':' is stripped first.
func Parse(s string) Version {
    var v Version
    if i := strings.LastIndex(s, ":"); i >= 0 {
        s = s[i+1:]
    }
    n := 0
    start := -1
    for i := 0; i <= len(s) && n < Groups; i++ {
        digit := i < len(s) && s[i] >= '0' && s[i] <= '9'
        switch {
        case digit && start < 0:
            start = i
        case !digit && start >= 0:
            v[n] = atoi(s[start:i])
            n++
            start = -1
        }
    }
    return v
}

func atoi(s string) int {
    i, err := strconv.Atoi(s)
    if err != nil { return 0 }
    return i
}

// AtLeast reports whether v is greater than or equal to min, deciding on the
// first component where the two differ.
func (v Version) AtLeast(min Version) bool {
    for i := 0; i < Groups; i++ {
        if v[i] != min[i] {
            return v[i] > min[i]
        }
    }
    return true
}

// String renders the five components joined by dots.
func (v Version) String() string {
    parts := make([]string, Groups)
    for i, c := range v { parts[i] = strconv.Itoa(c) }
    return strings.Join(parts, ".")
}

// Check reports whether version satisfies the minimum version.
func Check(version, minimum string) bool {
    return Parse(version).AtLeast(Parse(minimum))
}
