package version

import "testing"

func TestCheck(t *testing.T) {
    cases := []struct{
        version, min string
        want         bool
    }{
        {"1.1.1.1.1.1", "1.1.1.1.1.0", true},
        {"1.2", "2.1", false},
        {"2.1-some-text", "1.2", true},
        {"1", "1", true},
        {"14.1.1.0.0", "12.2.1.4.0", true},
        {"12.2.1.3.0", "12.2.1.4.0", false},
        {"22.06-SNAPSHOT", "22.06.0", true},
        {"container-registry.example.com/middleware/coherence:14.1.1.0.0", "14.1.1", true},
        {"localhost:5000/coherence:12.2.1.3", "12.2.1.4", false},
        {"", "0", true},
        {"", "1", false},
    }
    for _, c := range cases {
        if got := Check(c.version, c.min); got != c.want {
            t.Fatalf("Check(%q, %q) = %v, want %v", c.version, c.min, got, c.want)
        }
    }
}

func TestParse(t *testing.T) {
    cases := map[string]string{
        "1.2.3":                 "1.2.3.0.0",
        "v10_20-30":             "10.20.30.0.0",
        "1.2.3.4.5.6.7":         "1.2.3.4.5",
        "img:3.4":               "3.4.0.0.0",
        "14.1.1.0.0-SNAPSHOT":   "14.1.1.0.0",
        "no digits":             "0.0.0.0.0",
    }
    for in, want := range cases {
        if got := Parse(in).String(); got != want {
            t.Fatalf("Parse(%q) = %s, want %s", in, got, want)
        }
    }
}
