// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Utterances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "utterances_total",
		Help:      "Finalized utterances delivered by the global listener.",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "commands_total",
		Help:      "Dispatched voice commands by matched rule.",
	}, []string{"rule"})

	SpeechRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "speech_requests_total",
		Help:      "Speech output requests by outcome.",
	}, []string{"outcome"})

	RecognitionRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "recognition_restarts_total",
		Help:      "Automatic restarts of the global recognition session.",
	})

	RecognitionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "recognition_errors_total",
		Help:      "Recognition session errors by owner and kind.",
	}, []string{"owner", "kind"})

	Collaborator = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odin",
		Name:      "collaborator_requests_total",
		Help:      "External AI collaborator calls by service and result.",
	}, []string{"service", "result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
