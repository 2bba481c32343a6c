package wka

import (
    "errors"
    "fmt"
    "time"

    "github.com/amirimatin/cluster-probe/pkg/discovery"
)

var (
    // ErrNoSeeds means nothing was configured; callers skip discovery.
    ErrNoSeeds = errors.New("wka: no seeds configured")
    // ErrResolutionTimeout matches every *ResolutionTimeoutError.
    ErrResolutionTimeout = errors.New("wka: host resolution timeout")
)

// ResolutionTimeoutError reports that no seed resolved before the timeout.
type ResolutionTimeoutError struct {
    Elapsed  time.Duration
    Attempts int
    Seeds    []discovery.SeedAddress
    Last     error
}

func (e *ResolutionTimeoutError) Error() string {
    msg := fmt.Sprintf("host resolution timeout after %s (%d attempts, seeds %v)", e.Elapsed.Round(time.Millisecond), e.Attempts, e.Seeds)
    if e.Last != nil { msg += ": " + e.Last.Error() }
    return msg
}

func (e *ResolutionTimeoutError) Is(target error) bool { return target == ErrResolutionTimeout }

func (e *ResolutionTimeoutError) Unwrap() error { return e.Last }
