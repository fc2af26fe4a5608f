package agent

import (
	"sync"

	"github.com/zapflowhq/zapflow/config"
	"github.com/zapflowhq/zapflow/dispatcher"
	"github.com/zapflowhq/zapflow/flow"
	"github.com/zapflowhq/zapflow/flowlog"
	"github.com/zapflowhq/zapflow/gateway"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
	redisdao "github.com/zapflowhq/zapflow/persistence/redis"
	"github.com/zapflowhq/zapflow/persistence/sqlite"
	"github.com/zapflowhq/zapflow/rest"
	"github.com/zapflowhq/zapflow/scheduler"
	"github.com/zapflowhq/zapflow/store"
	"github.com/zapflowhq/zapflow/waitreply"
)

// storeQueue feeds interpreter-created delay jobs straight into the shared
// due set; the scheduler drains the same set on sweeps.
type storeQueue struct {
	store *store.Store
}

func (q *storeQueue) Enqueue(job *model.DelayJob) error {
	return q.store.PushJob(job)
}

type Agent struct {
	Config       config.Config
	durable      *sqlite.Store
	cache        *redisdao.Store
	store        *store.Store
	interpreter  *flow.Interpreter
	scheduler    *scheduler.Scheduler
	coordinator  *waitreply.Coordinator
	recorder     *flowlog.Recorder
	dispatcher   *dispatcher.Dispatcher
	httpServer   *rest.Server
	shutdown     bool
	shutdownLock sync.Mutex
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupServices,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	durable, err := sqlite.NewStore(a.Config.SqlitePath)
	if err != nil {
		return err
	}
	a.durable = durable
	a.cache = redisdao.NewStore(redisdao.Config{
		Addrs:     a.Config.RedisConfig.Addrs,
		Namespace: a.Config.RedisConfig.Namespace,
	})
	a.store = store.New(a.durable, a.cache)
	return nil
}

func (a *Agent) setupServices() error {
	var shortener gateway.Shortener
	if a.Config.ShortenerUrl != "" {
		shortener = gateway.NewShortenerClient(a.Config.ShortenerUrl)
	}
	sender := gateway.NewWhatsAppClient(a.Config.WhatsAppConfig)
	a.coordinator = waitreply.NewCoordinator(a.store.WaitReplies())
	a.recorder = flowlog.NewRecorder(a.store.FlowLogs(), a.store.FlowLogMirror())

	// the interpreter enqueues jobs through the scheduler; wire the
	// scheduler second and close the loop through the queue seam
	queue := &storeQueue{store: a.store}
	a.interpreter = flow.NewInterpreter(sender, shortener, a.coordinator, queue, a.store)
	a.scheduler = scheduler.NewScheduler(a.store, a.interpreter, a.recorder)
	a.dispatcher = dispatcher.NewDispatcher(a.store, a.interpreter, a.scheduler, a.coordinator, a.recorder)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config, a.dispatcher, a.store)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped")
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		a.cache.Close,
		a.durable.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
