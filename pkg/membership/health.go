package membership

// HealthReporter is implemented by memberships that can rate their own
// failure detector. Zero is healthy, higher values mean degraded gossip and
// -1 means not started.
type HealthReporter interface {
    HealthScore() int
}
