package flow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zapflowhq/zapflow/gateway"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
	"go.uber.org/zap"
)

// maxSteps bounds one graph walk per entry node; cycles terminate here.
const maxSteps = 40

// WaitRegistry registers a continuation resumed by the next inbound message.
type WaitRegistry interface {
	Enqueue(state model.WaitReplyState) error
}

// JobQueue schedules a continuation resumed at a future due time.
type JobQueue interface {
	Enqueue(job *model.DelayJob) error
}

// Thread appends to and patches the contact's conversation thread.
type Thread interface {
	AppendMessage(msg *model.Message) error
	UpdateMessageStatus(waId string, msgId string, status model.MessageStatus, providerId string) error
}

// Interpreter walks a flow's node graph, executing node behaviors against the
// contact passed in. The contact is owned by the run and committed by the
// caller afterwards.
type Interpreter struct {
	sender    gateway.Sender
	shortener gateway.Shortener
	waits     WaitRegistry
	jobs      JobQueue
	thread    Thread
	now       func() time.Time
}

func NewInterpreter(sender gateway.Sender, shortener gateway.Shortener, waits WaitRegistry, jobs JobQueue, thread Thread) *Interpreter {
	return &Interpreter{
		sender:    sender,
		shortener: shortener,
		waits:     waits,
		jobs:      jobs,
		thread:    thread,
		now:       time.Now,
	}
}

// SetNow overrides the clock, used by tests.
func (it *Interpreter) SetNow(now func() time.Time) {
	it.now = now
}

// Run executes the flow for the contact. With resumeNodeId the walk starts
// there; otherwise every start node triggered by an inbound message becomes
// an entry. It returns false when nothing matched. Ordinary messaging
// failures never surface as errors; only missing required configuration does.
func (it *Interpreter) Run(fl *model.FlowDefinition, contact *model.Contact, notes *model.Notes, inboundText string, resumeNodeId string) (bool, error) {
	if it.sender == nil {
		return false, fmt.Errorf("message gateway not configured")
	}
	var entries []string
	if resumeNodeId != "" {
		entries = []string{resumeNodeId}
	} else {
		entries = fl.StartNodes(model.TRIGGER_MESSAGE_RECEIVED)
	}
	if len(entries) == 0 {
		return false, nil
	}
	for _, entry := range entries {
		it.walk(fl, entry, contact, notes, inboundText)
	}
	return true, nil
}

func (it *Interpreter) walk(fl *model.FlowDefinition, entry string, contact *model.Contact, notes *model.Notes, inboundText string) {
	nodeId := entry
	for steps := 0; ; steps++ {
		if steps >= maxSteps {
			notes.Addf("steps:%d", maxSteps)
			return
		}
		node := fl.NodeById(nodeId)
		if node == nil {
			return
		}
		branch, stop := it.eval(fl, node, contact, notes, inboundText)
		if stop {
			return
		}
		next := fl.NextNode(node.Id, branch)
		if next == "" {
			return
		}
		nodeId = next
	}
}

// eval runs one node and returns the branch to follow, or stop=true when the
// node suspends or dead-ends the walk.
func (it *Interpreter) eval(fl *model.FlowDefinition, node *model.Node, contact *model.Contact, notes *model.Notes, inboundText string) (branch string, stop bool) {
	switch node.Type {
	case model.NODE_TYPE_START:
		return model.BRANCH_DEFAULT, false

	case model.NODE_TYPE_CONDITION:
		if node.Condition == nil {
			return model.BRANCH_DEFAULT, false
		}
		branch := evalRule(node.Condition.Rule, contact, inboundText)
		notes.Addf("cond:%s:%s", node.Id, branch)
		return branch, false

	case model.NODE_TYPE_ACTION:
		return it.evalAction(fl, node, contact, notes)

	case model.NODE_TYPE_DELAY:
		return it.evalDelay(fl, node, contact, notes, inboundText)

	case model.NODE_TYPE_MESSAGE:
		if node.Message == nil {
			return model.BRANCH_DEFAULT, false
		}
		it.sendMessage(node, contact, notes)
		return it.messageBranch(fl, node, notes, inboundText), false
	}
	logger.Warn("unknown node type, skipping", zap.String("node", node.Id), zap.String("type", string(node.Type)))
	return model.BRANCH_DEFAULT, false
}

func (it *Interpreter) evalAction(fl *model.FlowDefinition, node *model.Node, contact *model.Contact, notes *model.Notes) (string, bool) {
	if node.Action == nil {
		return model.BRANCH_DEFAULT, false
	}
	switch node.Action.Kind {
	case model.ACTION_KIND_TAG:
		contact.AddTag(node.Action.Tag)
		notes.Addf("acao:tag:%s", node.Action.Tag)
		return model.BRANCH_DEFAULT, false

	case model.ACTION_KIND_TAG_REMOVE:
		contact.RemoveTag(node.Action.Tag)
		notes.Addf("acao:tag_remove:%s", node.Action.Tag)
		return model.BRANCH_DEFAULT, false

	case model.ACTION_KIND_WAIT_REPLY:
		next := fl.NextNode(node.Id, model.BRANCH_DEFAULT)
		if next == "" {
			notes.Addf("acao:aguardar:%s:sem_proximo", node.Id)
			return "", true
		}
		state := model.WaitReplyState{
			Id:         uuid.New().String(),
			FlowId:     fl.Id,
			ContactId:  contact.WaId,
			NextNodeId: next,
			CreatedAt:  it.now(),
		}
		if err := it.waits.Enqueue(state); err != nil {
			logger.Error("error registering wait state", zap.String("flow", fl.Id), zap.Error(err))
			notes.Addf("acao:aguardar:%s:falha", node.Id)
			return "", true
		}
		notes.Addf("acao:aguardar:%s", node.Id)
		return "", true

	case model.ACTION_KIND_HANDOFF:
		tag := node.Action.Tag
		if tag == "" {
			tag = "atendimento_humano"
		}
		contact.AddTag(tag)
		notes.Addf("acao:humano:%s", node.Id)
		// a human takes over; automation stops on this branch
		return "", true
	}
	notes.Addf("acao:desconhecida:%s", node.Id)
	return model.BRANCH_DEFAULT, false
}

func (it *Interpreter) evalDelay(fl *model.FlowDefinition, node *model.Node, contact *model.Contact, notes *model.Notes, inboundText string) (string, bool) {
	if node.Delay == nil {
		return model.BRANCH_DEFAULT, false
	}
	seconds := delaySeconds(node.Delay)
	if seconds <= 0 {
		notes.Addf("delay:%s:ignorado", node.Id)
		return model.BRANCH_DEFAULT, false
	}
	next := fl.NextNode(node.Id, model.BRANCH_DEFAULT)
	if next == "" {
		notes.Addf("delay:%s:sem_proximo", node.Id)
		return "", true
	}
	now := it.now()
	event := &model.Message{
		Id:        uuid.New().String(),
		WaId:      contact.WaId,
		Direction: model.DIRECTION_OUT,
		Kind:      model.MESSAGE_KIND_EVENT,
		Body:      fmt.Sprintf("delay active, ~%s", (time.Duration(seconds) * time.Second).String()),
		Status:    model.STATUS_SENDING,
		At:        now,
	}
	if err := it.thread.AppendMessage(event); err != nil {
		logger.Warn("error appending delay timeline event", zap.String("flow", fl.Id), zap.Error(err))
	}
	job := &model.DelayJob{
		Id:          uuid.New().String(),
		FlowId:      fl.Id,
		ContactId:   contact.WaId,
		NextNodeId:  next,
		DueAt:       now.Add(time.Duration(seconds) * time.Second),
		EventMsgId:  event.Id,
		InboundText: inboundText,
		CreatedAt:   now,
	}
	if err := it.jobs.Enqueue(job); err != nil {
		logger.Error("error enqueueing delay job", zap.String("flow", fl.Id), zap.Error(err))
		notes.Addf("delay:%s:falha", node.Id)
		return "", true
	}
	notes.Addf("delay:%s:%ds", node.Id, seconds)
	return "", true
}

func delaySeconds(spec *model.DelaySpec) int {
	switch spec.Unit {
	case model.DELAY_UNIT_HOURS:
		return spec.Amount * 3600
	case model.DELAY_UNIT_MINUTES:
		return spec.Amount * 60
	case model.DELAY_UNIT_SECONDS:
		return spec.Amount
	}
	return 0
}
