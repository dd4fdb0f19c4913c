package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Completed settlements by ownership lane.",
	}, []string{"lane"})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcasts_total",
		Help: "Realtime events fanned out to store subscribers.",
	}, []string{"event"})

	TableAutoReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "table_auto_releases_total",
		Help: "Tables freed by a scheduled or reconciled auto-release.",
	}, []string{"source"})
)
