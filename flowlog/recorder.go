// Package flowlog records the append-only, de-duplicating audit trail of
// flow executions.
package flowlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/metrics"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	"go.uber.org/zap"
)

// mergeWindow is the span within which identical entries collapse into one.
const mergeWindow = 15 * time.Second

// Mirror is the optional durable copy; writes to it are best-effort.
type Mirror interface {
	Append(entry *model.FlowLogEntry) error
}

type Recorder struct {
	logs   persistence.FlowLogDao
	mirror Mirror
	now    func() time.Time
}

func NewRecorder(logs persistence.FlowLogDao, mirror Mirror) *Recorder {
	return &Recorder{logs: logs, mirror: mirror, now: time.Now}
}

// SetNow overrides the clock, used by tests.
func (r *Recorder) SetNow(now func() time.Time) {
	r.now = now
}

// Append records an entry, merging it into the previous one when identical
// within the merge window. It never fails the caller's main path.
func (r *Recorder) Append(entry *model.FlowLogEntry) {
	now := r.now()
	head, err := r.logs.Head()
	if err != nil {
		logger.Warn("error reading flow log head", zap.Error(err))
	}
	if head != nil && now.Sub(head.At) <= mergeWindow && sameEntry(head, entry) {
		head.RepeatCount++
		head.At = now
		head.Notes = append(stripRepeatMarkers(head.Notes), fmt.Sprintf("repeat:%d", head.RepeatCount))
		if err := r.logs.ReplaceHead(head); err != nil {
			logger.Warn("error merging flow log entry", zap.Error(err))
		}
		metrics.LogMerges.Inc()
		return
	}
	entry.At = now
	if entry.RepeatCount == 0 {
		entry.RepeatCount = 1
	}
	if err := r.logs.Prepend(entry); err != nil {
		logger.Warn("error appending flow log entry", zap.Error(err))
	}
	if r.mirror != nil {
		if err := r.mirror.Append(entry); err != nil {
			logger.Warn("error mirroring flow log entry", zap.Error(err))
		}
	}
}

func (r *Recorder) List(limit int) ([]model.FlowLogEntry, error) {
	return r.logs.List(limit)
}

func sameEntry(a *model.FlowLogEntry, b *model.FlowLogEntry) bool {
	return a.ContactId == b.ContactId &&
		a.FlowId == b.FlowId &&
		a.FlowName == b.FlowName &&
		a.Trigger == b.Trigger &&
		equalStrings(a.TagsBefore, b.TagsBefore) &&
		equalStrings(a.TagsAfter, b.TagsAfter) &&
		equalStrings(stripRepeatMarkers(a.Notes), stripRepeatMarkers(b.Notes))
}

func stripRepeatMarkers(notes []string) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if strings.HasPrefix(n, "repeat:") {
			continue
		}
		out = append(out, n)
	}
	return out
}

func equalStrings(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
