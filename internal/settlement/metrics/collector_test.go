package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
)

func TestCollector_RunFinished(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RunFinished(pipeline.Outcome{
		Success:   true,
		Processed: 3,
		Skipped:   1,
		Credits:   ledger.CreditReport{Applied: 2, Failed: 1, Credited: decimal.NewFromInt(225)},
		Duration:  40 * time.Millisecond,
	})
	c.RunFinished(pipeline.Outcome{Kind: domain.KindBackup})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("BackupFailure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.betsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.betsSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.credits.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.credits.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_StageAndWorkerCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.StageFailed(pipeline.StageVerifying, domain.KindVerification)
	c.StageFailed(pipeline.StageVerifying, domain.KindVerification)
	c.Consumed()
	c.Settled()
	c.DeadLettered()
	c.WorkerError("decode")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.stageFailures.WithLabelValues("verifying", "VerificationFailure")))
	assert.Equal(t, 4, testutil.CollectAndCount(c.messages))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues("error_decode")))
}

func TestCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
