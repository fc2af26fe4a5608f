package dispatcher

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/zapflowhq/zapflow/flow"
	"github.com/zapflowhq/zapflow/flowlog"
	"github.com/zapflowhq/zapflow/model"
	redisdao "github.com/zapflowhq/zapflow/persistence/redis"
	"github.com/zapflowhq/zapflow/persistence/sqlite"
	"github.com/zapflowhq/zapflow/scheduler"
	"github.com/zapflowhq/zapflow/store"
	"github.com/zapflowhq/zapflow/waitreply"
)

type fakeSender struct {
	texts []string
}

func (f *fakeSender) SendText(to string, body string, previewUrl bool) (string, error) {
	f.texts = append(f.texts, body)
	return fmt.Sprintf("wamid.out.%d", len(f.texts)), nil
}

func (f *fakeSender) SendImage(to string, url string, caption string) (string, error) {
	return f.SendText(to, caption, false)
}

type env struct {
	store    *store.Store
	sender   *fakeSender
	waits    *waitreply.Coordinator
	recorder *flowlog.Recorder
	disp     *Dispatcher
}

func newEnv(t *testing.T) *env {
	mr := miniredis.RunT(t)
	client := rd.NewUniversalClient(&rd.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { client.Close() })
	cache := redisdao.NewStoreWithClient(client, "test")
	durable, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { durable.Close() })

	st := store.New(durable, cache)
	sender := &fakeSender{}
	coordinator := waitreply.NewCoordinator(st.WaitReplies())
	recorder := flowlog.NewRecorder(st.FlowLogs(), st.FlowLogMirror())
	interp := flow.NewInterpreter(sender, nil, coordinator, &storeQueue{st: st}, st)
	sch := scheduler.NewScheduler(st, interp, recorder)
	return &env{
		store:    st,
		sender:   sender,
		waits:    coordinator,
		recorder: recorder,
		disp:     NewDispatcher(st, interp, sch, coordinator, recorder),
	}
}

type storeQueue struct {
	st *store.Store
}

func (q *storeQueue) Enqueue(job *model.DelayJob) error {
	return q.st.PushJob(job)
}

func greetingFlow() *model.FlowDefinition {
	return &model.FlowDefinition{
		Id: "f1", Name: "boas vindas", Enabled: true,
		Nodes: []model.Node{
			{Id: "n1", Type: model.NODE_TYPE_START, Start: &model.StartSpec{Trigger: model.TRIGGER_MESSAGE_RECEIVED}},
			{Id: "n2", Type: model.NODE_TYPE_ACTION, Action: &model.ActionSpec{Kind: model.ACTION_KIND_TAG, Tag: "bemvindo"}},
			{Id: "n3", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "Olá {wa_id}"}},
		},
		Edges: []model.Edge{
			{From: "n1", To: "n2", Branch: model.BRANCH_DEFAULT},
			{From: "n2", To: "n3", Branch: model.BRANCH_DEFAULT},
		},
	}
}

func inbound(id string, from string, ts string, body string) *model.InboundMessage {
	return &model.InboundMessage{
		From: from, Id: id, Timestamp: ts, Type: "text",
		Text: &model.InboundText{Body: body},
	}
}

func TestInboundMessageTriggersFlows(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SaveFlow(greetingFlow()))

	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000000", "oi"), "Alice")

	contact, err := e.store.GetContact("5511")
	require.NoError(t, err)
	require.Equal(t, "Alice", contact.Name)
	require.True(t, contact.HasTag("bemvindo"))
	require.Equal(t, "oi", contact.LastMessageText)
	require.Equal(t, "wamid.a", contact.LastFlowTriggerMsgId)

	require.Equal(t, []string{"Olá 5511"}, e.sender.texts)

	msgs, err := e.store.ListMessages("5511", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	entries, err := e.recorder.List(10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, model.TRIGGER_MESSAGE_RECEIVED, entries[0].Trigger)
	require.Equal(t, "f1", entries[0].FlowId)
	require.Contains(t, entries[0].TagsAfter, "bemvindo")
}

func TestBurstIsDebounced(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SaveFlow(greetingFlow()))

	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000000", "oi"), "")
	e.disp.HandleInboundMessage(inbound("wamid.b", "5511", "1700000005", "oi oi"), "")
	require.Len(t, e.sender.texts, 1)

	entries, err := e.recorder.List(10)
	require.NoError(t, err)
	require.Contains(t, entries[0].Notes, "debounced")

	// outside the window the next message triggers again
	e.disp.HandleInboundMessage(inbound("wamid.c", "5511", "1700000020", "oi de novo"), "")
	require.Len(t, e.sender.texts, 2)
}

func TestRedeliveredMessageIdDebounced(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SaveFlow(greetingFlow()))

	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000000", "oi"), "")
	// same provider id long after the time window still counts as a duplicate
	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000100", "oi"), "")
	require.Len(t, e.sender.texts, 1)
}

func TestWaitResumeTakesPrecedenceOverTriggers(t *testing.T) {
	e := newEnv(t)
	fl := greetingFlow()
	fl.Nodes = append(fl.Nodes, model.Node{
		Id: "n7", Type: model.NODE_TYPE_MESSAGE, Message: &model.MessageSpec{Body: "continuação"},
	})
	require.NoError(t, e.store.SaveFlow(fl))
	require.NoError(t, e.waits.Enqueue(model.WaitReplyState{
		Id: "w1", FlowId: "f1", ContactId: "5511", NextNodeId: "n7",
	}))

	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000000", "sim"), "")

	// only the continuation ran, no fresh trigger
	require.Equal(t, []string{"continuação"}, e.sender.texts)
	states, err := e.waits.TakeAll("5511")
	require.NoError(t, err)
	require.Empty(t, states)

	entries, err := e.recorder.List(10)
	require.NoError(t, err)
	require.Equal(t, "resume", entries[0].Trigger)

	// with no waits left the next message starts the flow normally
	e.disp.HandleInboundMessage(inbound("wamid.b", "5511", "1700000030", "oi"), "")
	require.Equal(t, []string{"continuação", "Olá 5511"}, e.sender.texts)
}

func TestResumeOfUnavailableFlowIsDropped(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.waits.Enqueue(model.WaitReplyState{
		Id: "w1", FlowId: "ghost", ContactId: "5511", NextNodeId: "n7",
	}))

	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000000", "sim"), "")

	require.Empty(t, e.sender.texts)
	entries, err := e.recorder.List(10)
	require.NoError(t, err)
	require.Contains(t, entries[0].Notes, "fluxo_indisponivel:ghost")

	states, err := e.waits.TakeAll("5511")
	require.NoError(t, err)
	require.Empty(t, states)
}

func TestNoEnabledFlows(t *testing.T) {
	e := newEnv(t)
	fl := greetingFlow()
	fl.Enabled = false
	require.NoError(t, e.store.SaveFlow(fl))

	e.disp.HandleInboundMessage(inbound("wamid.a", "5511", "1700000000", "oi"), "")

	require.Empty(t, e.sender.texts)
	entries, err := e.recorder.List(10)
	require.NoError(t, err)
	require.Contains(t, entries[0].Notes, "sem_fluxos")

	// the contact record is still kept current
	contact, err := e.store.GetContact("5511")
	require.NoError(t, err)
	require.Equal(t, "oi", contact.LastMessageText)
}

func TestStatusReceiptPatchesMessage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.AppendMessage(&model.Message{
		Id: "m1", WaId: "5511", Direction: model.DIRECTION_OUT,
		Kind: model.MESSAGE_KIND_TEXT, Status: model.STATUS_SENT, ProviderId: "prov1",
	}))

	e.disp.HandleStatus(&model.InboundStatus{RecipientId: "5511", Id: "prov1", Status: "read"})

	msgs, err := e.store.ListMessages("5511", 10)
	require.NoError(t, err)
	require.Equal(t, model.STATUS_READ, msgs[0].Status)

	// receipts for unknown messages are tolerated
	e.disp.HandleStatus(&model.InboundStatus{RecipientId: "5511", Id: "ghost", Status: "read"})
}

func TestHandleWebhookEnvelope(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SaveFlow(greetingFlow()))

	payload := &model.WebhookPayload{
		Entry: []model.WebhookEntry{{
			Changes: []model.WebhookChange{{
				Value: model.WebhookValue{
					Contacts: []model.InboundContact{{
						WaId: "5511", Profile: model.InboundProfile{Name: "Alice"},
					}},
					Messages: []model.InboundMessage{
						*inbound("wamid.a", "5511", "1700000000", "oi"),
					},
				},
			}},
		}},
	}
	e.disp.HandleWebhook(payload)

	contact, err := e.store.GetContact("5511")
	require.NoError(t, err)
	require.Equal(t, "Alice", contact.Name)
	require.Len(t, e.sender.texts, 1)
}
