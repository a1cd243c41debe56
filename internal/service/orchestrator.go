package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"mission_rewards/internal/config"
	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_job_duration_seconds",
			Help:    "Duration of orchestrator jobs",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"job"},
	)

	jobTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_job_total",
			Help: "Orchestrator job outcomes",
		},
		[]string{"job", "status"},
	)
)

func init() {
	prometheus.MustRegister(jobDuration, jobTotal)
}

type JobStatus string

const (
	JobSuccess            JobStatus = "success"
	JobFailed             JobStatus = "failed"
	JobSkippedTimeout     JobStatus = "skipped_timeout"
	JobSkippedProbability JobStatus = "skipped_probability"
)

// Job is one unit of the orchestrator run. Run receives the time it may
// spend; Probability below 1 makes the job run only on a dice roll.
type Job struct {
	Name        string
	Reserve     time.Duration
	Probability float64
	Run         func(ctx context.Context, budget time.Duration) (interface{}, error)
}

type JobResult struct {
	Name       string        `json:"name"`
	Status     JobStatus     `json:"status"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Detail     interface{}   `json:"detail,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type RunReport struct {
	ExecutionID uuid.UUID     `json:"execution_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	Jobs        []JobResult   `json:"jobs"`
	SuccessRate float64       `json:"success_rate"`
}

// Count returns how many jobs ended with status.
func (r RunReport) Count(status JobStatus) int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

// Orchestrator runs the periodic jobs in priority order inside one budget.
type Orchestrator struct {
	jobs   []Job
	budget time.Duration
	audit  *AuditService
	log    *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewOrchestrator(budget time.Duration, jobs []Job, audit *AuditService) *Orchestrator {
	return &Orchestrator{
		jobs:   jobs,
		budget: budget,
		audit:  audit,
		log:    logger.Component("orchestrator"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand swaps the dice used for probabilistic jobs.
func (o *Orchestrator) WithRand(r *rand.Rand) *Orchestrator {
	o.mu.Lock()
	o.rnd = r
	o.mu.Unlock()
	return o
}

func (o *Orchestrator) roll() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rnd.Float64()
}

// DefaultJobs wires the pipeline in priority order: mission sweep, reward
// settlement, beam, leaderboard.
func DefaultJobs(cfg config.OrchestratorConfig, lcfg config.LedgerConfig, missions *MissionTracker, ledger *Ledger, beam *Beam, board *Leaderboard) []Job {
	return []Job{
		{
			Name:        "mission_sweep",
			Reserve:     cfg.MissionReserve,
			Probability: 1,
			Run: func(ctx context.Context, budget time.Duration) (interface{}, error) {
				return missions.Sweep(ctx, cfg.MissionBatch, minDuration(cfg.MissionBudget, budget), cfg.MissionStaleness)
			},
		},
		{
			Name:        "reward_settlement",
			Reserve:     cfg.SettleReserve,
			Probability: 1,
			Run: func(ctx context.Context, budget time.Duration) (interface{}, error) {
				return ledger.SettlePending(ctx, lcfg.SettleBatch, minDuration(lcfg.SettleBudget, budget))
			},
		},
		{
			Name:        "beam",
			Reserve:     cfg.BeamReserve,
			Probability: cfg.BeamProbability,
			Run: func(ctx context.Context, _ time.Duration) (interface{}, error) {
				return beam.RunCycle(ctx)
			},
		},
		{
			Name:        "leaderboard_recompute",
			Reserve:     cfg.RankReserve,
			Probability: 1,
			Run: func(ctx context.Context, _ time.Duration) (interface{}, error) {
				return board.Recompute(ctx)
			},
		},
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a <= 0 || b < a {
		return b
	}
	return a
}

// Run executes every job once. A job is skipped when less than its reserve
// is left of the budget; a failing job never stops the ones after it.
func (o *Orchestrator) Run(ctx context.Context) RunReport {
	started := time.Now()
	report := RunReport{
		ExecutionID: uuid.New(),
		StartedAt:   started,
		Jobs:        make([]JobResult, 0, len(o.jobs)),
	}
	log := o.log.With("execution_id", report.ExecutionID)
	log.Info("orchestrator run started", "jobs", len(o.jobs), "budget", o.budget)

	successes := 0
	for _, job := range o.jobs {
		res := o.runJob(ctx, job, started, log)
		if res.Status == JobSuccess {
			successes++
		}
		jobTotal.WithLabelValues(job.Name, string(res.Status)).Inc()
		report.Jobs = append(report.Jobs, res)
	}

	if n := len(report.Jobs); n > 0 {
		report.SuccessRate = float64(successes) / float64(n)
	}
	report.Duration = time.Since(started)
	report.DurationMS = report.Duration.Milliseconds()

	statuses := make(map[string]interface{}, len(report.Jobs))
	for _, j := range report.Jobs {
		statuses[j.Name] = string(j.Status)
	}
	o.audit.Log(ctx, "", domain.AuditActionOrchestratorRun, domain.AuditCategoryJobs, map[string]interface{}{
		"execution_id": report.ExecutionID.String(),
		"success_rate": report.SuccessRate,
		"jobs":         statuses,
	})
	log.Info("orchestrator run finished", "success_rate", report.SuccessRate, "duration", report.Duration)
	return report
}

func (o *Orchestrator) runJob(ctx context.Context, job Job, started time.Time, log *slog.Logger) JobResult {
	res := JobResult{Name: job.Name}

	remaining := o.budget - time.Since(started)
	if remaining <= job.Reserve || ctx.Err() != nil {
		res.Status = JobSkippedTimeout
		log.Warn("job skipped, budget exhausted", "job", job.Name, "remaining", remaining)
		return res
	}
	if job.Probability < 1 && o.roll() >= job.Probability {
		res.Status = JobSkippedProbability
		return res
	}

	// no deadline on ctx: jobs check the budget between units
	t0 := time.Now()
	detail, err := safeRun(ctx, job, remaining)
	res.Duration = time.Since(t0)
	res.DurationMS = res.Duration.Milliseconds()
	jobDuration.WithLabelValues(job.Name).Observe(res.Duration.Seconds())

	res.Detail = detail
	if err != nil {
		res.Status = JobFailed
		res.Error = err.Error()
		log.Error("job failed", "job", job.Name, "error", err, "duration", res.Duration)
		return res
	}
	res.Status = JobSuccess
	log.Info("job finished", "job", job.Name, "duration", res.Duration)
	return res
}

// safeRun turns a panicking job into a failed one.
func safeRun(ctx context.Context, job Job, budget time.Duration) (detail interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx, budget)
}
