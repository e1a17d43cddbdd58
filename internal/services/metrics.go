package services

import "github.com/prometheus/client_golang/prometheus"

// turnsAppended counts stored turns by where their answer came from
// (welcome, identity, model, empty, degraded).
var turnsAppended = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Total number of chat turns stored, by answer source.",
	},
	[]string{"source"},
)

func init() {
	prometheus.MustRegister(turnsAppended)
}
