package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth-related Prometheus metrics. Defined in a standalone package to avoid
// import cycles between session (resolver) and HTTP packages.

var (
	SnapshotCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_snapshot_cache_hits_total",
		Help: "Hits del cache de snapshots por realm",
	}, []string{"realm"})

	SnapshotCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_snapshot_cache_misses_total",
		Help: "Misses del cache de snapshots por realm",
	}, []string{"realm"})

	SnapshotRefreshFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_snapshot_refresh_failures_total",
		Help: "Fallas del fetch canónico en refresh de snapshot",
	}, []string{"realm"})

	SocialSignins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_signin_total",
		Help: "Resultados de signin social por provider y status",
	}, []string{"provider", "status"})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		SnapshotCacheHits,
		SnapshotCacheMisses,
		SnapshotRefreshFailures,
		SocialSignins,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
