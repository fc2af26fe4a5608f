package flow

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zapflowhq/zapflow/model"
)

type sentText struct {
	to      string
	body    string
	preview bool
}

type fakeSender struct {
	texts  []sentText
	images []sentText
	err    error
}

func (f *fakeSender) SendText(to string, body string, previewUrl bool) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.texts = append(f.texts, sentText{to: to, body: body, preview: previewUrl})
	return fmt.Sprintf("wamid.%d", len(f.texts)), nil
}

func (f *fakeSender) SendImage(to string, url string, caption string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.images = append(f.images, sentText{to: to, body: caption})
	return fmt.Sprintf("wamid.img.%d", len(f.images)), nil
}

type fakeShortener struct {
	short string
	err   error
	calls int
}

func (f *fakeShortener) Shorten(longUrl string, image string, correlationId string) (string, error) {
	f.calls++
	return f.short, f.err
}

type fakeWaits struct {
	states []model.WaitReplyState
}

func (f *fakeWaits) Enqueue(state model.WaitReplyState) error {
	f.states = append(f.states, state)
	return nil
}

type fakeJobs struct {
	jobs []*model.DelayJob
}

func (f *fakeJobs) Enqueue(job *model.DelayJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeThread struct {
	msgs     []*model.Message
	statuses map[string]model.MessageStatus
}

func newFakeThread() *fakeThread {
	return &fakeThread{statuses: map[string]model.MessageStatus{}}
}

func (f *fakeThread) AppendMessage(msg *model.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeThread) UpdateMessageStatus(waId string, msgId string, status model.MessageStatus, providerId string) error {
	f.statuses[msgId] = status
	return nil
}

type testEnv struct {
	interp *Interpreter
	sender *fakeSender
	short  *fakeShortener
	waits  *fakeWaits
	jobs   *fakeJobs
	thread *fakeThread
}

func newTestEnv() *testEnv {
	env := &testEnv{
		sender: &fakeSender{},
		short:  &fakeShortener{},
		waits:  &fakeWaits{},
		jobs:   &fakeJobs{},
		thread: newFakeThread(),
	}
	env.interp = NewInterpreter(env.sender, env.short, env.waits, env.jobs, env.thread)
	return env
}

func startNode(id string) model.Node {
	return model.Node{Id: id, Type: model.NODE_TYPE_START, Start: &model.StartSpec{Trigger: model.TRIGGER_MESSAGE_RECEIVED}}
}

func tagNode(id string, tag string) model.Node {
	return model.Node{Id: id, Type: model.NODE_TYPE_ACTION, Action: &model.ActionSpec{Kind: model.ACTION_KIND_TAG, Tag: tag}}
}

func edge(from string, to string, branch string) model.Edge {
	return model.Edge{From: from, To: to, Branch: branch}
}

func TestConditionTagBranches(t *testing.T) {
	fl := &model.FlowDefinition{
		Id:      "f1",
		Name:    "vip check",
		Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_CONDITION, Condition: &model.ConditionSpec{
				Rule: model.Rule{Type: model.RULE_TYPE_TAG, Op: model.RULE_OP_IS_NOT, Tag: "vip"},
			}},
			tagNode("n3", "novo"),
			tagNode("n4", "conhecido"),
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_YES),
			edge("n2", "n4", model.BRANCH_NO),
		},
	}

	env := newTestEnv()
	contact := &model.Contact{WaId: "5511999990000"}
	notes := &model.Notes{}
	executed, err := env.interp.Run(fl, contact, notes, "oi", "")
	require.NoError(t, err)
	require.True(t, executed)
	require.True(t, contact.HasTag("novo"))
	require.False(t, contact.HasTag("conhecido"))
	require.Contains(t, notes.Items, "cond:n2:yes")

	vip := &model.Contact{WaId: "5511999990001", Tags: []string{"vip"}}
	notes = &model.Notes{}
	_, err = env.interp.Run(fl, vip, notes, "oi", "")
	require.NoError(t, err)
	require.True(t, vip.HasTag("conhecido"))
	require.False(t, vip.HasTag("novo"))
	require.Contains(t, notes.Items, "cond:n2:no")
}

func TestConditionKeywordIgnoresCaseAndAccents(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_CONDITION, Condition: &model.ConditionSpec{
				Rule: model.Rule{Type: model.RULE_TYPE_KEYWORD, Keyword: "promoção"},
			}},
			tagNode("n3", "interessado"),
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_YES),
		},
	}

	env := newTestEnv()
	contact := &model.Contact{WaId: "551199"}
	_, err := env.interp.Run(fl, contact, &model.Notes{}, "quero a PROMOCAO agora", "")
	require.NoError(t, err)
	require.True(t, contact.HasTag("interessado"))
}

func TestRunWithoutMatchingStartNode(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			{Id: "n1", Type: model.NODE_TYPE_START, Start: &model.StartSpec{Trigger: "other_trigger"}},
		},
	}
	env := newTestEnv()
	executed, err := env.interp.Run(fl, &model.Contact{WaId: "1"}, &model.Notes{}, "oi", "")
	require.NoError(t, err)
	require.False(t, executed)
}

func TestWaitReplyRegistersContinuationAndStops(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_ACTION, Action: &model.ActionSpec{Kind: model.ACTION_KIND_WAIT_REPLY}},
			{Id: "n3", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "depois"}},
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_DEFAULT),
		},
	}

	env := newTestEnv()
	contact := &model.Contact{WaId: "5511"}
	_, err := env.interp.Run(fl, contact, &model.Notes{}, "oi", "")
	require.NoError(t, err)
	require.Len(t, env.waits.states, 1)
	require.Equal(t, "n3", env.waits.states[0].NextNodeId)
	require.Equal(t, "f1", env.waits.states[0].FlowId)
	require.Equal(t, "5511", env.waits.states[0].ContactId)
	// the branch suspended before reaching the message node
	require.Empty(t, env.sender.texts)
}

func TestWaitReplyWithoutNextNode(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_ACTION, Action: &model.ActionSpec{Kind: model.ACTION_KIND_WAIT_REPLY}},
		},
		Edges: []model.Edge{edge("n1", "n2", model.BRANCH_DEFAULT)},
	}

	env := newTestEnv()
	notes := &model.Notes{}
	_, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, notes, "oi", "")
	require.NoError(t, err)
	require.Empty(t, env.waits.states)
	require.Contains(t, notes.Items, "acao:aguardar:n2:sem_proximo")
}

func TestDelayEnqueuesJobAndSuspends(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_DELAY, Delay: &model.DelaySpec{Amount: 5, Unit: model.DELAY_UNIT_SECONDS}},
			{Id: "n3", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "Oi"}},
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_DEFAULT),
		},
	}

	env := newTestEnv()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.interp.SetNow(func() time.Time { return t0 })
	notes := &model.Notes{}
	_, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, notes, "quero saber", "")
	require.NoError(t, err)

	require.Len(t, env.jobs.jobs, 1)
	job := env.jobs.jobs[0]
	require.Equal(t, t0.Add(5*time.Second), job.DueAt)
	require.Equal(t, "n3", job.NextNodeId)
	require.Equal(t, "quero saber", job.InboundText)
	require.NotEmpty(t, job.EventMsgId)
	require.Contains(t, notes.Items, "delay:n2:5s")

	// a timeline event landed in the thread, nothing was sent yet
	require.Len(t, env.thread.msgs, 1)
	require.Equal(t, model.MESSAGE_KIND_EVENT, env.thread.msgs[0].Kind)
	require.Equal(t, job.EventMsgId, env.thread.msgs[0].Id)
	require.Empty(t, env.sender.texts)
}

func TestDelayZeroIsSkipped(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_DELAY, Delay: &model.DelaySpec{Amount: 0, Unit: model.DELAY_UNIT_MINUTES}},
			{Id: "n3", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "Oi"}},
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_DEFAULT),
		},
	}

	env := newTestEnv()
	notes := &model.Notes{}
	_, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, notes, "oi", "")
	require.NoError(t, err)
	require.Empty(t, env.jobs.jobs)
	require.Contains(t, notes.Items, "delay:n2:ignorado")
	require.Len(t, env.sender.texts, 1)
}

func TestMessageSendLifecycle(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "Seu código: {wa_id}"}},
		},
		Edges: []model.Edge{edge("n1", "n2", model.BRANCH_DEFAULT)},
	}

	env := newTestEnv()
	_, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, &model.Notes{}, "oi", "")
	require.NoError(t, err)
	require.Len(t, env.sender.texts, 1)
	require.Equal(t, "Seu código: 5511", env.sender.texts[0].body)
	require.Len(t, env.thread.msgs, 1)
	require.Equal(t, model.STATUS_SENT, env.thread.statuses[env.thread.msgs[0].Id])
}

func TestMessageSendFailureDoesNotAbortRun(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "um"}},
			{Id: "n3", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "dois"}},
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_DEFAULT),
		},
	}

	env := newTestEnv()
	env.sender.err = fmt.Errorf("provider down")
	notes := &model.Notes{}
	executed, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, notes, "oi", "")
	require.NoError(t, err)
	require.True(t, executed)
	require.Len(t, env.thread.msgs, 2)
	require.Equal(t, model.STATUS_FAILED, env.thread.statuses[env.thread.msgs[0].Id])
	require.Equal(t, model.STATUS_FAILED, env.thread.statuses[env.thread.msgs[1].Id])
	require.Contains(t, notes.Items, "msg:n2:falha")
	require.Contains(t, notes.Items, "msg:n3:falha")
}

func TestShortenerFailureFallsBackToLongUrl(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{
				Body: "confira", Url: "https://example.com/oferta", LinkMode: model.LINK_MODE_LAST,
			}},
		},
		Edges: []model.Edge{edge("n1", "n2", model.BRANCH_DEFAULT)},
	}

	env := newTestEnv()
	env.short.err = fmt.Errorf("shortener down")
	notes := &model.Notes{}
	_, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, notes, "oi", "")
	require.NoError(t, err)
	require.Contains(t, notes.Items, "short:n2:falha")
	require.Equal(t, "confira\n\nhttps://example.com/oferta", env.sender.texts[0].body)
	require.True(t, env.sender.texts[0].preview)
}

func TestLinkModes(t *testing.T) {
	for mode, want := range map[model.LinkMode]string{
		model.LINK_MODE_FIRST: "https://s.io/x\n\ncorpo",
		model.LINK_MODE_LAST:  "corpo\n\nhttps://s.io/x",
		model.LINK_MODE_ONLY:  "https://s.io/x",
	} {
		t.Run(string(mode), func(t *testing.T) {
			fl := &model.FlowDefinition{
				Id: "f1", Enabled: true,
				Nodes: []model.Node{
					startNode("n1"),
					{Id: "n2", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{
						Body: "corpo", Url: "https://example.com/x", LinkMode: mode,
					}},
				},
				Edges: []model.Edge{edge("n1", "n2", model.BRANCH_DEFAULT)},
			}
			env := newTestEnv()
			env.short.short = "https://s.io/x"
			_, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, &model.Notes{}, "oi", "")
			require.NoError(t, err)
			require.Equal(t, want, env.sender.texts[0].body)
		})
	}
}

func TestQuickReplyOptionBranch(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			{Id: "n2", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{
				Body: "confirma?", Options: []string{"sim", "não"},
			}},
			tagNode("n3", "confirmado"),
			tagNode("n4", "recusado"),
		},
		Edges: []model.Edge{
			edge("n2", "n3", "sim"),
			edge("n2", "n4", "não"),
		},
	}

	env := newTestEnv()
	contact := &model.Contact{WaId: "5511"}
	notes := &model.Notes{}
	// resumed at the message node by a wait continuation carrying the reply
	_, err := env.interp.Run(fl, contact, notes, "Sim", "n2")
	require.NoError(t, err)
	require.True(t, contact.HasTag("confirmado"))
	require.False(t, contact.HasTag("recusado"))
	require.Contains(t, notes.Items, "opt:n2:sim")
}

func TestStepCapTerminatesCycles(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			tagNode("n2", "loop"),
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n2", model.BRANCH_DEFAULT),
		},
	}

	env := newTestEnv()
	notes := &model.Notes{}
	executed, err := env.interp.Run(fl, &model.Contact{WaId: "5511"}, notes, "oi", "")
	require.NoError(t, err)
	require.True(t, executed)
	require.Contains(t, notes.Items, "steps:40")
}

func TestHandoffStopsAutomation(t *testing.T) {
	fl := &model.FlowDefinition{
		Id: "f1", Enabled: true,
		Nodes: []model.Node{
			startNode("n1"),
			{Id: "n2", Type: model.NODE_TYPE_ACTION, Action: &model.ActionSpec{Kind: model.ACTION_KIND_HANDOFF}},
			{Id: "n3", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "nunca"}},
		},
		Edges: []model.Edge{
			edge("n1", "n2", model.BRANCH_DEFAULT),
			edge("n2", "n3", model.BRANCH_DEFAULT),
		},
	}

	env := newTestEnv()
	contact := &model.Contact{WaId: "5511"}
	_, err := env.interp.Run(fl, contact, &model.Notes{}, "oi", "")
	require.NoError(t, err)
	require.True(t, contact.HasTag("atendimento_humano"))
	require.Empty(t, env.sender.texts)
}

func TestMissingGatewayConfiguration(t *testing.T) {
	interp := NewInterpreter(nil, nil, &fakeWaits{}, &fakeJobs{}, newFakeThread())
	fl := &model.FlowDefinition{Id: "f1", Nodes: []model.Node{startNode("n1")}}
	_, err := interp.Run(fl, &model.Contact{WaId: "5511"}, &model.Notes{}, "oi", "")
	require.Error(t, err)
}
