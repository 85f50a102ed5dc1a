package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var healAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storyloom_heal_attempts_total",
		Help: "Automatic repair attempts by reason and result",
	},
	[]string{"reason", "result"},
)
