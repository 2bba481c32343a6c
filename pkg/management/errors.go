package management

import "errors"

var (
    // ErrUnavailable means the management query could not be answered; the
    // state is unknown and must never be read as healthy.
    ErrUnavailable = errors.New("management: unavailable")
    // ErrNotFound means a scoped request named an unknown service or member.
    ErrNotFound = errors.New("management: not found")
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
