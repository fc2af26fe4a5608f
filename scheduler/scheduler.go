// Package scheduler drains the due-time-ordered delay job queue and executes
// each job exactly once, gated by the claim ledger.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/zapflowhq/zapflow/flow"
	"github.com/zapflowhq/zapflow/flowlog"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/metrics"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	"github.com/zapflowhq/zapflow/store"
	"go.uber.org/zap"
)

const (
	maxRetries    = 3
	retryBackoff  = 15 * time.Second
	claimMaxAge   = 7 * 24 * time.Hour
	purgeInterval = time.Hour

	DefaultSweepLimit = 20
	MaxSweepLimit     = 100
)

type Scheduler struct {
	store    *store.Store
	interp   *flow.Interpreter
	recorder *flowlog.Recorder
	now      func() time.Time
}

var _ flow.JobQueue = (*Scheduler)(nil)

func NewScheduler(st *store.Store, interp *flow.Interpreter, recorder *flowlog.Recorder) *Scheduler {
	return &Scheduler{
		store:    st,
		interp:   interp,
		recorder: recorder,
		now:      time.Now,
	}
}

// SetNow overrides the clock, used by tests.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

func (s *Scheduler) Enqueue(job *model.DelayJob) error {
	return s.store.PushJob(job)
}

func (s *Scheduler) DrainDue(now time.Time, limit int) ([]model.DelayJob, error) {
	return s.store.PopDueJobs(now, limit)
}

// ProcessDueJobs drains and executes due jobs. Each job's outcome is
// isolated; the counters are the only place internal failures surface.
func (s *Scheduler) ProcessDueJobs(limit int) (processed int, errCount int) {
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	if limit > MaxSweepLimit {
		limit = MaxSweepLimit
	}
	s.maybePurgeClaims()
	now := s.now()
	jobs, err := s.DrainDue(now, limit)
	if err != nil {
		logger.Error("error draining due jobs", zap.Error(err))
		return 0, 1
	}
	for i := range jobs {
		job := jobs[i]
		if err := s.processJob(&job, now); err != nil {
			errCount++
			s.retryOrAbandon(&job, err)
		} else {
			processed++
			metrics.JobsProcessed.Inc()
		}
	}
	return processed, errCount
}

func (s *Scheduler) processJob(job *model.DelayJob, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while executing job: %v", r)
		}
	}()

	claimErr := s.store.TryClaim(job.Id, now)
	if claimErr != nil {
		if errors.Is(claimErr, persistence.ErrClaimDenied) {
			logger.Debug("job already claimed, skipping", zap.String("job", job.Id))
			return nil
		}
		return claimErr
	}

	fl, flowErr := s.store.GetFlow(job.FlowId)
	if flowErr != nil || !fl.Enabled {
		s.markEventDone(job)
		s.recorder.Append(&model.FlowLogEntry{
			ContactId: job.ContactId,
			FlowId:    job.FlowId,
			Trigger:   "delay",
			Notes:     []string{fmt.Sprintf("fluxo_nao_encontrado:%s", job.FlowId)},
		})
		if releaseErr := s.store.ReleaseClaim(job.Id); releaseErr != nil {
			logger.Warn("error releasing claim", zap.String("job", job.Id), zap.Error(releaseErr))
		}
		return nil
	}

	contact, contactErr := s.store.GetContact(job.ContactId)
	if contactErr != nil {
		s.markEventDone(job)
		s.recorder.Append(&model.FlowLogEntry{
			ContactId: job.ContactId,
			FlowId:    job.FlowId,
			FlowName:  fl.Name,
			Trigger:   "delay",
			Notes:     []string{"contato_nao_encontrado"},
		})
		if releaseErr := s.store.ReleaseClaim(job.Id); releaseErr != nil {
			logger.Warn("error releasing claim", zap.String("job", job.Id), zap.Error(releaseErr))
		}
		return nil
	}

	s.markEventDone(job)
	tagsBefore := contact.TagsCopy()
	notes := &model.Notes{}
	if _, runErr := s.interp.Run(fl, contact, notes, job.InboundText, job.NextNodeId); runErr != nil {
		return runErr
	}
	if saveErr := s.store.SaveContact(contact); saveErr != nil {
		logger.Error("error persisting contact after job", zap.String("job", job.Id), zap.Error(saveErr))
	}
	s.recorder.Append(&model.FlowLogEntry{
		ContactId:  contact.WaId,
		FlowId:     fl.Id,
		FlowName:   fl.Name,
		Trigger:    "delay",
		TagsBefore: tagsBefore,
		TagsAfter:  contact.TagsCopy(),
		Notes:      notes.Items,
	})
	if releaseErr := s.store.ReleaseClaim(job.Id); releaseErr != nil {
		logger.Warn("error releasing claim", zap.String("job", job.Id), zap.Error(releaseErr))
	}
	return nil
}

// retryOrAbandon re-enqueues a failed job with fixed backoff, releasing its
// claim so the retry can claim again; past the retry budget it is abandoned
// with a terminal log entry and its claim is kept.
func (s *Scheduler) retryOrAbandon(job *model.DelayJob, cause error) {
	metrics.JobsFailed.Inc()
	job.RetryCount++
	if job.RetryCount <= maxRetries {
		if err := s.store.ReleaseClaim(job.Id); err != nil {
			logger.Warn("error releasing claim for retry", zap.String("job", job.Id), zap.Error(err))
		}
		job.DueAt = s.now().Add(retryBackoff)
		if err := s.Enqueue(job); err != nil {
			logger.Error("error re-enqueueing job", zap.String("job", job.Id), zap.Error(err))
			return
		}
		metrics.JobsRetried.Inc()
		logger.Warn("job failed, scheduled retry", zap.String("job", job.Id),
			zap.Int("retry", job.RetryCount), zap.Error(cause))
		return
	}
	logger.Error("job failed permanently, abandoning", zap.String("job", job.Id), zap.Error(cause))
	s.recorder.Append(&model.FlowLogEntry{
		ContactId: job.ContactId,
		FlowId:    job.FlowId,
		Trigger:   "delay",
		Notes:     []string{fmt.Sprintf("abandonado:%s", job.Id), fmt.Sprintf("erro:%v", cause)},
	})
}

func (s *Scheduler) markEventDone(job *model.DelayJob) {
	if job.EventMsgId == "" {
		return
	}
	if err := s.store.UpdateMessageStatus(job.ContactId, job.EventMsgId, model.STATUS_DONE, ""); err != nil {
		logger.Warn("error marking timeline event done", zap.String("job", job.Id), zap.Error(err))
	}
}

// maybePurgeClaims deletes claim records older than seven days, throttled to
// once per hour across all invocations via the cache-tier marker.
func (s *Scheduler) maybePurgeClaims() {
	if !s.store.TryMarkClaimPurge(purgeInterval) {
		return
	}
	purged, err := s.store.PurgeClaimsOlderThan(s.now().Add(-claimMaxAge))
	if err != nil {
		logger.Warn("error purging old claims", zap.Error(err))
		return
	}
	if purged > 0 {
		logger.Info("purged old claim records", zap.Int("count", purged))
	}
}
