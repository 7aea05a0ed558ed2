package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_notification_fetches_total",
		Help: "Notification feed fetches by outcome.",
	}, []string{"outcome"})

	liveAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_notification_live_appends_total",
		Help: "Push-delivered notifications appended outside the polling cycle.",
	})

	unreadGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_notifications_unread",
		Help: "Current unread notification counter.",
	})
)
