package management

import (
    "github.com/amirimatin/cluster-probe/pkg/version"
)

// Select picks the in-process source when clusterVersion satisfies
// minLocalVersion and an in-process source exists, otherwise the remote one.
// The choice is made once; callers keep the returned Source.
func Select(clusterVersion, minLocalVersion string, local, remote Source) Source {
    if local != nil && (remote == nil || version.Check(clusterVersion, minLocalVersion)) {
        return local
    }
    return remote
}
