package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
)

// Collector implementa pipeline.Observer e os callbacks do worker.
type Collector struct {
	runs          *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	betsProcessed prometheus.Counter
	betsSkipped   prometheus.Counter
	credits       *prometheus.CounterVec
	duration      prometheus.Histogram
	messages      *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_runs_total",
			Help: "Execuções do pipeline por desfecho (success ou kind da falha).",
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_stage_failures_total",
			Help: "Falhas por estágio do pipeline.",
		}, []string{"stage", "kind"}),
		betsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_bets_processed_total",
			Help: "Apostas liquidadas.",
		}),
		betsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_bets_skipped_total",
			Help: "Apostas puladas por erro de avaliação.",
		}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_credits_total",
			Help: "Créditos de carteira por resultado (applied|failed).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_run_duration_seconds",
			Help:    "Duração de uma execução do pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_worker_messages_total",
			Help: "Mensagens do worker por evento (consumed|settled|dlq|error_<fase>).",
		}, []string{"event"}),
	}
	reg.MustRegister(c.runs, c.stageFailures, c.betsProcessed, c.betsSkipped, c.credits, c.duration, c.messages)
	return c
}

func (c *Collector) RunFinished(o pipeline.Outcome) {
	outcome := "success"
	if !o.Success {
		outcome = string(o.Kind)
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.betsProcessed.Add(float64(o.Processed))
	c.betsSkipped.Add(float64(o.Skipped))
	c.credits.WithLabelValues("applied").Add(float64(o.Credits.Applied))
	c.credits.WithLabelValues("failed").Add(float64(o.Credits.Failed))
	c.duration.Observe(o.Duration.Seconds())
}

func (c *Collector) StageFailed(stage pipeline.Stage, kind domain.Kind) {
	c.stageFailures.WithLabelValues(string(stage), string(kind)).Inc()
}

func (c *Collector) Consumed() { c.messages.WithLabelValues("consumed").Inc() }
func (c *Collector) Settled() { c.messages.WithLabelValues("settled").Inc() }
func (c *Collector) DeadLettered() { c.messages.WithLabelValues("dlq").Inc() }
func (c *Collector) WorkerError(phase string) { c.messages.WithLabelValues("error_" + phase).Inc() }
