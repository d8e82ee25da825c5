// Package metrics exposes prometheus counters for the bot's conversation flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Questions      prometheus.Counter
	QuotaRefusals  *prometheus.CounterVec
	Sends          *prometheus.CounterVec
	Edits          prometheus.Counter
	EditFailures   prometheus.Counter
	StreamFailures prometheus.Counter
	TokensUsed     prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Questions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "questions_total",
			Help:      "Questions accepted and sent to the chat backend.",
		}),
		QuotaRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "quota_refusals_total",
			Help:      "Gating points that refused a user with no remaining quota.",
		}, []string{"gate"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "stream_sends_total",
			Help:      "Messages sent while relaying a stream, by kind.",
		}, []string{"kind"}),
		Edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "stream_edits_total",
			Help:      "Successful in-place edits of a streamed answer.",
		}),
		EditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "stream_edit_failures_total",
			Help:      "Edits of a streamed answer that Telegram rejected.",
		}),
		StreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "stream_failures_total",
			Help:      "Streams aborted by a backend error.",
		}),
		TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guabot",
			Name:      "tokens_used_total",
			Help:      "Tokens reported by completed chats.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Questions,
			m.QuotaRefusals,
			m.Sends,
			m.Edits,
			m.EditFailures,
			m.StreamFailures,
			m.TokensUsed,
		)
	}
	return m
}
