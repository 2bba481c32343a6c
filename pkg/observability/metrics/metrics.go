package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    ProbeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "cluster_probe",
        Name:      "requests_total",
        Help:      "Health endpoint requests by route and response code",
    }, []string{"route", "code"})

    ProbeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "cluster_probe",
        Name:      "request_duration_seconds",
        Help:      "Time spent evaluating a health endpoint request",
        Buckets:   prometheus.DefBuckets,
    }, []string{"route"})

    HASafe = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "cluster_probe",
        Name:      "ha_safe",
        Help:      "1 if the last HA evaluation was safe, else 0",
    })

    UnsafeServices = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "cluster_probe",
        Name:      "unsafe_services",
        Help:      "Number of services that made the last HA evaluation unsafe",
    })

    ClusterMembers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "cluster_probe",
        Name:      "members_total",
        Help:      "Members visible in the last cluster snapshot",
    })

    GossipHealth = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "cluster_probe",
        Subsystem: "membership",
        Name:      "health_score",
        Help:      "Failure detector awareness score of the embedded membership (0 is healthy)",
    })

    ManagementErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "cluster_probe",
        Subsystem: "management",
        Name:      "errors_total",
        Help:      "Failed management queries by source kind",
    }, []string{"source"})

    SuspendActions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "cluster_probe",
        Subsystem: "management",
        Name:      "actions_total",
        Help:      "Suspend and resume calls applied to services",
    }, []string{"action"})

    WKAAttempts = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "cluster_probe",
        Subsystem: "wka",
        Name:      "attempts_total",
        Help:      "Seed resolution attempts (one attempt covers every seed)",
    })

    WKAResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "cluster_probe",
        Subsystem: "wka",
        Name:      "resolutions_total",
        Help:      "Finished seed resolutions by result",
    }, []string{"result"})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(ProbeRequests)
        prometheus.MustRegister(ProbeLatency)
        prometheus.MustRegister(HASafe)
        prometheus.MustRegister(UnsafeServices)
        prometheus.MustRegister(ClusterMembers)
        prometheus.MustRegister(GossipHealth)
        prometheus.MustRegister(ManagementErrors)
        prometheus.MustRegister(SuspendActions)
        prometheus.MustRegister(WKAAttempts)
        prometheus.MustRegister(WKAResolutions)
    })
}
