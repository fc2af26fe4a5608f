// Package dispatcher orchestrates inbound webhook events and periodic
// sweeps: it resolves contact state, resumes suspended continuations or
// starts fresh flow runs, and commits the results.
package dispatcher

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zapflowhq/zapflow/flow"
	"github.com/zapflowhq/zapflow/flowlog"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/metrics"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	"github.com/zapflowhq/zapflow/scheduler"
	"github.com/zapflowhq/zapflow/store"
	"github.com/zapflowhq/zapflow/waitreply"
	"go.uber.org/zap"
)

// debounceWindow is the minimum spacing between automatic flow triggers for
// one contact.
const debounceWindow = 10 * time.Second

type Dispatcher struct {
	store     *store.Store
	interp    *flow.Interpreter
	scheduler *scheduler.Scheduler
	waits     *waitreply.Coordinator
	recorder  *flowlog.Recorder
	now       func() time.Time
}

func NewDispatcher(st *store.Store, interp *flow.Interpreter, sch *scheduler.Scheduler, waits *waitreply.Coordinator, recorder *flowlog.Recorder) *Dispatcher {
	return &Dispatcher{
		store:     st,
		interp:    interp,
		scheduler: sch,
		waits:     waits,
		recorder:  recorder,
		now:       time.Now,
	}
}

// SetNow overrides the clock, used by tests.
func (d *Dispatcher) SetNow(now func() time.Time) {
	d.now = now
}

// SweepDueJobs runs a bounded due-job sweep. Every entry point piggybacks
// one; there is no dedicated always-on timer process.
func (d *Dispatcher) SweepDueJobs(limit int) (int, int) {
	return d.scheduler.ProcessDueJobs(limit)
}

// HandleWebhook processes one provider envelope. It never returns an error:
// internal failures are only visible through the log trail.
func (d *Dispatcher) HandleWebhook(payload *model.WebhookPayload) {
	value := payload.Value()
	if value == nil {
		return
	}
	names := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		names[c.WaId] = c.Profile.Name
	}
	for i := range value.Messages {
		msg := value.Messages[i]
		metrics.WebhookEvents.Inc()
		d.HandleInboundMessage(&msg, names[msg.From])
	}
	for i := range value.Statuses {
		st := value.Statuses[i]
		metrics.WebhookEvents.Inc()
		d.HandleStatus(&st)
	}
}

// HandleInboundMessage updates the contact's summaries, then either resumes
// outstanding wait-reply continuations or triggers enabled flows, debounced.
func (d *Dispatcher) HandleInboundMessage(msg *model.InboundMessage, profileName string) {
	text := msg.Body()
	eventTime := msg.Time()
	contact := d.resolveContact(msg.From, profileName)
	contact.LastMessageText = text
	contact.LastMessageAt = eventTime
	d.appendInbound(msg, text, eventTime)

	states, err := d.waits.TakeAll(contact.WaId)
	if err != nil {
		logger.Error("error taking wait states", zap.String("waId", contact.WaId), zap.Error(err))
	}
	if len(states) > 0 {
		d.resumeWaits(contact, states, text)
		d.commit(contact)
		return
	}

	flows := d.enabledFlows()
	if len(flows) == 0 {
		d.recorder.Append(&model.FlowLogEntry{
			ContactId: contact.WaId,
			Trigger:   model.TRIGGER_MESSAGE_RECEIVED,
			Notes:     []string{"sem_fluxos"},
		})
		d.commit(contact)
		return
	}

	if d.debounced(contact, msg, eventTime) {
		d.recorder.Append(&model.FlowLogEntry{
			ContactId: contact.WaId,
			Trigger:   model.TRIGGER_MESSAGE_RECEIVED,
			Notes:     []string{"debounced"},
		})
		d.commit(contact)
		return
	}

	// persisted before running so a concurrent delivery of the same burst
	// sees the trigger and debounces
	contact.LastFlowTriggerAt = eventTime
	contact.LastFlowTriggerMsgId = msg.Id
	d.commit(contact)

	for i := range flows {
		fl := flows[i]
		tagsBefore := contact.TagsCopy()
		notes := &model.Notes{}
		executed, err := d.interp.Run(&fl, contact, notes, text, "")
		if err != nil {
			logger.Error("error running flow", zap.String("flow", fl.Id), zap.Error(err))
			notes.Add("erro:configuracao")
		}
		if !executed {
			notes.Add("sem_gatilho")
		}
		d.recorder.Append(&model.FlowLogEntry{
			ContactId:  contact.WaId,
			FlowId:     fl.Id,
			FlowName:   fl.Name,
			Trigger:    model.TRIGGER_MESSAGE_RECEIVED,
			TagsBefore: tagsBefore,
			TagsAfter:  contact.TagsCopy(),
			Notes:      notes.Items,
		})
	}
	d.commit(contact)
}

// HandleStatus patches the stored message status from a delivery or read
// receipt; statuses never trigger flows.
func (d *Dispatcher) HandleStatus(st *model.InboundStatus) {
	status := model.MessageStatus(st.Status)
	err := d.store.UpdateMessageStatusByProviderId(st.RecipientId, st.Id, status)
	if err != nil && !errors.Is(err, persistence.ErrMessageNotFound) {
		logger.Warn("error patching message status", zap.String("waId", st.RecipientId),
			zap.String("providerId", st.Id), zap.Error(err))
	}
}

func (d *Dispatcher) resumeWaits(contact *model.Contact, states []model.WaitReplyState, text string) {
	for _, st := range states {
		fl, err := d.store.GetFlow(st.FlowId)
		if err != nil || !fl.Enabled {
			d.recorder.Append(&model.FlowLogEntry{
				ContactId: contact.WaId,
				FlowId:    st.FlowId,
				Trigger:   "resume",
				Notes:     []string{"fluxo_indisponivel:" + st.FlowId},
			})
			continue
		}
		tagsBefore := contact.TagsCopy()
		notes := &model.Notes{}
		if _, err := d.interp.Run(fl, contact, notes, text, st.NextNodeId); err != nil {
			logger.Error("error resuming flow", zap.String("flow", st.FlowId), zap.Error(err))
			notes.Add("erro:configuracao")
		}
		d.recorder.Append(&model.FlowLogEntry{
			ContactId:  contact.WaId,
			FlowId:     fl.Id,
			FlowName:   fl.Name,
			Trigger:    "resume",
			TagsBefore: tagsBefore,
			TagsAfter:  contact.TagsCopy(),
			Notes:      notes.Items,
		})
	}
}

func (d *Dispatcher) resolveContact(waId string, profileName string) *model.Contact {
	contact, err := d.store.GetContact(waId)
	if err != nil {
		if !errors.Is(err, persistence.ErrContactNotFound) {
			logger.Warn("error resolving contact", zap.String("waId", waId), zap.Error(err))
		}
		contact = &model.Contact{WaId: waId}
	}
	if profileName != "" && contact.Name == "" {
		contact.Name = profileName
	}
	return contact
}

func (d *Dispatcher) debounced(contact *model.Contact, msg *model.InboundMessage, eventTime time.Time) bool {
	if msg.Id != "" && msg.Id == contact.LastFlowTriggerMsgId {
		return true
	}
	if contact.LastFlowTriggerAt.IsZero() {
		return false
	}
	gap := eventTime.Sub(contact.LastFlowTriggerAt)
	if gap < 0 {
		gap = -gap
	}
	return gap < debounceWindow
}

func (d *Dispatcher) enabledFlows() []model.FlowDefinition {
	flows, err := d.store.ListFlows()
	if err != nil {
		logger.Error("error listing flows", zap.Error(err))
		return nil
	}
	enabled := make([]model.FlowDefinition, 0, len(flows))
	for _, fl := range flows {
		if fl.Enabled {
			enabled = append(enabled, fl)
		}
	}
	return enabled
}

func (d *Dispatcher) appendInbound(msg *model.InboundMessage, text string, at time.Time) {
	entry := &model.Message{
		Id:        msg.Id,
		WaId:      msg.From,
		Direction: model.DIRECTION_IN,
		Kind:      model.MESSAGE_KIND_TEXT,
		Body:      text,
		Status:    model.STATUS_RECEIVED,
		At:        at,
	}
	if msg.Type == "image" {
		entry.Kind = model.MESSAGE_KIND_IMAGE
	}
	if entry.Id == "" {
		entry.Id = uuid.New().String()
	}
	if err := d.store.AppendMessage(entry); err != nil {
		logger.Warn("error appending inbound message", zap.String("waId", msg.From), zap.Error(err))
	}
}

func (d *Dispatcher) commit(contact *model.Contact) {
	if err := d.store.SaveContact(contact); err != nil {
		logger.Error("error persisting contact", zap.String("waId", contact.WaId), zap.Error(err))
	}
}
