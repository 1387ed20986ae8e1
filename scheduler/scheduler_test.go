package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "count" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestAddJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob(job, "0 10 * * *", "30 13 * * *", "0 17 * * *"))
	assert.Len(t, s.cron.Entries(), 3)

	assert.Error(t, s.AddJob(job, "at noon"))
}

func TestRunLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	s := New(zerolog.New(&buf))
	job := &countingJob{err: errors.New("provider down")}
	require.NoError(t, s.AddJob(job, "@every 1h"))

	s.cron.Entries()[0].WrappedJob.Run()
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Contains(t, buf.String(), "provider down")
	assert.Contains(t, buf.String(), `"job":"count"`)
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob(job, "@every 1s"))
	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

type tableSource struct{ t *holdings.RateTable }

func (s tableSource) Rates(ctx context.Context) (*holdings.RateTable, error) { return s.t, nil }

func TestRatesJob(t *testing.T) {
	table, err := holdings.NewRateTable("TRY", time.Now(), holdings.RateEntry{Code: "USD", Rate: decimal.NewFromInt(40)})
	require.NoError(t, err)
	ctx := context.Background()
	st := store.NewMemory()
	e, err := holdings.NewEngine(ctx, holdings.Options{Store: st, RateSource: tableSource{table}})
	require.NoError(t, err)

	s := New(zerolog.Nop())
	require.NoError(t, s.RunNow(ctx, RatesJob{Engine: e}))
	assert.Same(t, table, e.Rates())

	saved, err := st.LoadRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())

	assert.NoError(t, s.RunNow(ctx, PricesJob{Engine: e}), "no positions, nothing to update")
}
