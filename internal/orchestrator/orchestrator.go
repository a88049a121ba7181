package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Sharder/internal/allocation"
	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/fetch"
	"github.com/shaiso/Sharder/internal/launch"
	"github.com/shaiso/Sharder/internal/notify"
	"github.com/shaiso/Sharder/internal/process"
	"github.com/shaiso/Sharder/internal/protocol"
	"github.com/shaiso/Sharder/internal/stats"
	"github.com/shaiso/Sharder/internal/telemetry"
)

// Default configuration values.
const (
	defaultSweepInterval = time.Second
	defaultStopGrace     = 5 * time.Second
	defaultSpawnRetries  = 3
	defaultEventBuffer   = 256
	sinkTimeout          = 10 * time.Second
)

// Gateway сообщает рекомендованное количество шардов.
type Gateway interface {
	RecommendedShards(ctx context.Context) (int, error)
}

// StatsSink получает каждый готовый агрегат статистики (архив, брокер).
type StatsSink interface {
	RecordStats(ctx context.Context, s domain.ClusterStats) error
}

// StatsSinkFunc — адаптер функции к StatsSink.
type StatsSinkFunc func(ctx context.Context, s domain.ClusterStats) error

// RecordStats вызывает f.
func (f StatsSinkFunc) RecordStats(ctx context.Context, s domain.ClusterStats) error {
	return f(ctx, s)
}

// Orchestrator распределяет шарды и управляет процессами-воркерами.
type Orchestrator struct {
	// Collaborators
	spawner  process.Spawner
	gateway  Gateway
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	sinks    []StatsSink

	// State (только цикл событий)
	registry   *Registry
	launch     *launch.Sequencer
	fetch      *fetch.Router
	aggregator *stats.Aggregator
	restarts   *process.RestartPolicy
	planner    *allocation.Planner

	// Configuration
	workers       int
	debug         bool
	clientOptions json.RawMessage
	spawnRetries  int
	spawnBackoff  time.Duration
	stopGrace     time.Duration
	sweepInterval time.Duration
	statsSchedule string

	// Shared with readers outside the loop
	mu          sync.RWMutex
	plan        domain.ShardPlan
	latestStats *domain.ClusterStats

	listenersMu sync.RWMutex
	listeners   []func(Event)

	// Lifecycle
	events     chan loopEvent
	loopDone   chan struct{}
	cron       *cron.Cron
	now        func() time.Time
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	stopped    bool
	stateMu    sync.Mutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Spawner запускает процессы воркеров.
	Spawner process.Spawner

	// Gateway нужен, только если Shards == 0.
	Gateway Gateway

	// Notifier (опционально; если nil — notify.Nop).
	Notifier notify.Notifier

	// Metrics (опционально; если nil — регистрируются в собственном реестре).
	Metrics *telemetry.Metrics

	// StatsSinks получают каждый агрегат статистики.
	StatsSinks []StatsSink

	// Shards — явное количество шардов (0 — по рекомендации gateway).
	Shards int

	// Workers — количество процессов.
	Workers int

	// GuildsPerShard — делитель для авто-расчёта.
	GuildsPerShard int

	// StepsPerSecond — темп распределения (0 — без ограничения).
	StepsPerSecond float64

	// ClientOptions пробрасываются воркерам в команде start.
	ClientOptions json.RawMessage

	// Debug включает пересылку debug-логов воркеров.
	Debug bool

	// Launch
	ReadyTimeout time.Duration

	// Supervisor
	MaxRestarts   int
	RestartWindow time.Duration
	SpawnRetries  int           // default: 3
	SpawnBackoff  time.Duration
	StopGrace     time.Duration // default: 5s

	// Fetch
	FetchTimeout time.Duration

	// Stats
	StatsSchedule string // cron-выражение; пусто — сбор только по RequestStats
	StatsTimeout  time.Duration

	// SweepInterval — период проверки таймаутов (default: 1s).
	SweepInterval time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	spawnRetries := cfg.SpawnRetries
	if spawnRetries <= 0 {
		spawnRetries = defaultSpawnRetries
	}

	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	o := &Orchestrator{
		spawner:       cfg.Spawner,
		gateway:       cfg.Gateway,
		notifier:      notifier,
		metrics:       metrics,
		sinks:         cfg.StatsSinks,
		registry:      NewRegistry(),
		restarts:      process.NewRestartPolicy(cfg.MaxRestarts, cfg.RestartWindow),
		workers:       cfg.Workers,
		debug:         cfg.Debug,
		clientOptions: cfg.ClientOptions,
		spawnRetries:  spawnRetries,
		spawnBackoff:  cfg.SpawnBackoff,
		stopGrace:     stopGrace,
		sweepInterval: sweepInterval,
		statsSchedule: cfg.StatsSchedule,
		events:        make(chan loopEvent, defaultEventBuffer),
		loopDone:      make(chan struct{}),
		now:           now,
		logger:        logger,
	}

	o.planner = allocation.NewPlanner(allocation.PlannerConfig{
		ExplicitShards: cfg.Shards,
		GuildsPerShard: cfg.GuildsPerShard,
		StepsPerSecond: cfg.StepsPerSecond,
	})
	o.launch = launch.New(launch.Config{
		Sender:     transport{o},
		AckTimeout: cfg.ReadyTimeout,
		Logger:     logger,
		Now:        now,
	})
	o.fetch = fetch.New(fetch.Config{
		Transport: transport{o},
		Timeout:   cfg.FetchTimeout,
		Logger:    logger,
		Now:       now,
	})
	o.aggregator = stats.New(stats.Config{
		Timeout: cfg.StatsTimeout,
		Emit:    o.publishStats,
		Logger:  logger,
	})

	return o
}

// Start рассчитывает план, запускает воркеров и цикл событий.
// Распределение шардов продолжается в фоне; ошибки до запуска цикла фатальны.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.stateMu.Lock()
	if o.started {
		o.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.stateMu.Unlock()

	if o.workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1", allocation.ErrNoWorkers)
	}

	plan, err := o.computePlan(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.plan = plan
	o.mu.Unlock()
	o.metrics.ShardsTotal.Set(float64(plan.TotalShards))

	o.logger.Info("starting orchestrator",
		"workers", o.workers,
		"shards", plan.TotalShards,
		"recommended", plan.Recommended,
		"explicit", plan.Explicit,
	)

	ctx, cancel := context.WithCancel(ctx)
	o.stateMu.Lock()
	o.ctx = ctx
	o.cancelFunc = cancel
	o.stateMu.Unlock()

	if err := o.spawnAll(ctx); err != nil {
		cancel()
		return err
	}
	ids := o.registry.IDs()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		assignments, err := o.planner.Allocate(ctx, plan, ids)
		o.post(ctx, allocationEvent{assignments: assignments, err: err})
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// computePlan получает рекомендацию gateway (если нужна) и считает план.
func (o *Orchestrator) computePlan(ctx context.Context) (domain.ShardPlan, error) {
	recommended := 0
	if o.planner.NeedsRecommendation() {
		if o.gateway == nil {
			return domain.ShardPlan{}, ErrNoGateway
		}
		n, err := o.gateway.RecommendedShards(ctx)
		if err != nil {
			return domain.ShardPlan{}, fmt.Errorf("get recommended shards: %w", err)
		}
		recommended = n
	}
	return o.planner.Plan(recommended)
}

// Stop останавливает цикл, cron и все процессы воркеров.
func (o *Orchestrator) Stop() {
	o.stateMu.Lock()
	if !o.started || o.stopped {
		o.stateMu.Unlock()
		return
	}
	o.stopped = true
	o.stateMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	// Ждём завершения цикла и фоновых горутин
	o.wg.Wait()

	if o.cron != nil {
		<-o.cron.Stop().Done()
	}
	o.drainRespawns()

	// Цикл остановлен: Registry доступен из этой горутины.
	handles := o.registry.Handles()
	var g errgroup.Group
	for _, h := range handles {
		if h.Process == nil {
			continue
		}
		g.Go(func() error {
			_ = h.Process.Send(shutdownEnvelope())
			h.Process.Terminate(o.stopGrace)
			h.Status = domain.WorkerStatusTerminated
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("orchestrator stopped", "workers", len(handles))
}

// drainRespawns завершает замены, которые цикл не успел установить.
func (o *Orchestrator) drainRespawns() {
	for {
		select {
		case ev := <-o.events:
			if r, ok := ev.(respawnEvent); ok && r.proc != nil {
				r.proc.Terminate(o.stopGrace)
			}
		default:
			return
		}
	}
}

// Plan возвращает рассчитанный план шардов.
func (o *Orchestrator) Plan() domain.ShardPlan {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.plan
}

// LatestStats возвращает последний агрегат статистики.
func (o *Orchestrator) LatestStats() (domain.ClusterStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latestStats == nil {
		return domain.ClusterStats{}, false
	}
	return *o.latestStats, true
}

// Snapshot возвращает состояние воркеров по возрастанию id.
func (o *Orchestrator) Snapshot(ctx context.Context) ([]domain.WorkerInfo, error) {
	reply := make(chan []domain.WorkerInfo, 1)
	if err := o.request(ctx, snapshotQuery{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case infos := <-reply:
		return infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.loopDone:
		return nil, ErrNotRunning
	}
}

// Broadcast рассылает сообщение всем воркерам от имени оркестратора.
// Возвращает число получателей.
func (o *Orchestrator) Broadcast(ctx context.Context, msg json.RawMessage) (int, error) {
	reply := make(chan int, 1)
	if err := o.request(ctx, broadcastCommand{msg: msg, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-o.loopDone:
		return 0, ErrNotRunning
	}
}

// RequestStats запускает внеочередной раунд сбора статистики.
func (o *Orchestrator) RequestStats(ctx context.Context) error {
	return o.request(ctx, statsTick{})
}

// request отправляет событие в цикл от внешнего вызывающего.
func (o *Orchestrator) request(ctx context.Context, ev loopEvent) error {
	o.stateMu.Lock()
	running := o.started && !o.stopped && o.ctx != nil
	o.stateMu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case o.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.loopDone:
		return ErrNotRunning
	}
}

// post отправляет событие в цикл; после остановки событие отбрасывается.
func (o *Orchestrator) post(ctx context.Context, ev loopEvent) {
	select {
	case o.events <- ev:
	case <-ctx.Done():
	}
}

// OnMessage реализует process.Events.
func (o *Orchestrator) OnMessage(workerID, pid int, env protocol.Envelope) {
	o.post(o.ctx, messageEvent{workerID: workerID, pid: pid, env: env})
}

// OnExit реализует process.Events.
func (o *Orchestrator) OnExit(workerID, pid int, exit process.ExitStatus) {
	o.post(o.ctx, exitEvent{workerID: workerID, pid: pid, exit: exit})
}

// loop — цикл событий. Единственный владелец изменяемого состояния.
func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.loopDone)

	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.safely("sweep", func() { o.sweep(o.now()) })
		case ev := <-o.events:
			o.safely(ev.name(), func() { o.handle(ctx, ev) })
		}
	}
}

// safely выполняет обработчик, перехватывая panic.
func (o *Orchestrator) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event handler",
				"event", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// handle направляет событие цикла обработчику.
func (o *Orchestrator) handle(ctx context.Context, ev loopEvent) {
	switch ev := ev.(type) {
	case messageEvent:
		o.handleMessage(ev)
	case exitEvent:
		o.handleExit(ctx, ev)
	case respawnEvent:
		o.handleRespawn(ctx, ev)
	case allocationEvent:
		o.handleAllocation(ev)
	case statsTick:
		o.beginStatsRound()
	case snapshotQuery:
		infos := make([]domain.WorkerInfo, 0, o.registry.Len())
		for _, h := range o.registry.Handles() {
			infos = append(infos, h.Info())
		}
		ev.reply <- infos
	case broadcastCommand:
		env := protocol.MustNew(protocol.KindBroadcast, 0, protocol.BroadcastPayload{Message: ev.msg})
		ev.reply <- o.broadcast(env)
	}
}

// sweep проверяет таймауты запуска, fetch и статистики.
func (o *Orchestrator) sweep(now time.Time) {
	if item, ok := o.launch.Expire(now); ok {
		o.metrics.LaunchTimeouts.Inc()
		o.logger.Warn("worker did not become ready in time",
			"worker", item.WorkerID,
			"mode", item.Mode,
		)
	}

	if expired := o.fetch.Expire(now); len(expired) > 0 {
		o.metrics.FetchTimeouts.Add(float64(len(expired)))
	}

	o.aggregator.Expire(now)

	o.metrics.LaunchQueueDepth.Set(float64(o.launch.Len()))
	o.metrics.FetchPending.Set(float64(o.fetch.Pending()))
}

// handleAllocation применяет распределение: диапазоны и очередь start.
func (o *Orchestrator) handleAllocation(ev allocationEvent) {
	if ev.err != nil {
		o.logger.Error("shard allocation failed", "error", ev.err)
		return
	}

	plan := o.Plan()
	for _, a := range ev.assignments {
		h, ok := o.registry.Get(a.WorkerID)
		if !ok {
			o.logger.Error("allocation for retired worker, shards are offline",
				"worker", a.WorkerID,
				"shards", a.Range.String(),
			)
			continue
		}

		h.Range = a.Range
		h.ShardCount = a.ShardCount()
		if h.ShardCount == 0 {
			o.logger.Info("worker has no shards, not starting", "worker", h.ID)
			continue
		}

		// Замену запустит handleRespawn, когда процесс будет установлен.
		if h.Status == domain.WorkerStatusRestarting {
			o.logger.Info("worker is restarting, start deferred", "worker", h.ID)
			continue
		}

		if h.Status.IsAlive() {
			h.Status = domain.WorkerStatusAssigned
		}
		o.enqueueStart(h, domain.StartModeStart, plan.TotalShards)
	}

	o.logger.Info("shards spread",
		"shards", plan.TotalShards,
		"workers", len(ev.assignments),
	)
	o.emit(Event{Type: EventShardsSpread, Assignments: ev.assignments})

	o.startStatsSchedule()
}

// enqueueStart ставит команду start/resume воркера в очередь запуска.
func (o *Orchestrator) enqueueStart(h *WorkerHandle, mode domain.StartMode, maxShards int) {
	cmd := protocol.StartPayload{
		Mode:          mode,
		WorkerID:      h.ID,
		FirstShardID:  h.Range.First,
		LastShardID:   h.Range.Last,
		ShardCount:    h.ShardCount,
		MaxShards:     maxShards,
		ClientOptions: o.clientOptions,
	}
	o.launch.Enqueue(launch.Item{
		WorkerID: h.ID,
		Mode:     mode,
		Envelope: protocol.MustNew(protocol.KindStart, 0, cmd),
	})
	o.metrics.LaunchQueueDepth.Set(float64(o.launch.Len()))
}

// startStatsSchedule включает периодический сбор статистики.
func (o *Orchestrator) startStatsSchedule() {
	if o.statsSchedule == "" || o.cron != nil {
		return
	}

	ctx := o.ctx
	c := cron.New(cron.WithParser(stats.ScheduleParser))
	_, err := c.AddFunc(o.statsSchedule, func() {
		o.post(ctx, statsTick{})
	})
	if err != nil {
		o.logger.Error("invalid stats schedule", "schedule", o.statsSchedule, "error", err)
		return
	}
	o.cron = c
	c.Start()

	next, _ := stats.NextRound(o.statsSchedule, o.now())
	o.logger.Info("stats collection scheduled", "schedule", o.statsSchedule, "next", next)
}

// beginStatsRound открывает раунд и рассылает statsRequest.
func (o *Orchestrator) beginStatsRound() {
	ids := o.registry.IDs()
	round := o.aggregator.Begin(ids, o.now())
	if len(ids) == 0 {
		return
	}

	env := protocol.MustNew(protocol.KindStatsRequest, 0, nil).WithCorrelation(round)
	for _, id := range ids {
		if err := o.sendTo(id, env); err != nil {
			o.logger.Warn("failed to request stats", "worker", id, "error", err)
			o.aggregator.Skip(id, o.now())
		}
	}
}

// publishStats получает агрегат от stats.Aggregator.
func (o *Orchestrator) publishStats(s domain.ClusterStats) {
	o.mu.Lock()
	o.latestStats = &s
	o.mu.Unlock()

	o.metrics.ObserveStats(s)
	o.logger.Info("stats collected",
		"round", s.Round,
		"guilds", s.Guilds,
		"users", s.Users,
		"shards", s.Shards,
		"ram_mb", s.TotalRAM,
		"complete", s.Complete,
	)
	o.emit(Event{Type: EventStats, Stats: &s})

	if len(o.sinks) == 0 || o.ctx == nil {
		return
	}
	ctx := o.ctx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		defer cancel()
		for _, sink := range o.sinks {
			if err := sink.RecordStats(ctx, s); err != nil {
				o.logger.Warn("failed to record stats", "round", s.Round, "error", err)
			}
		}
	}()
}

// --- loop events ---

type loopEvent interface {
	name() string
}

type messageEvent struct {
	workerID int
	pid      int
	env      protocol.Envelope
}

type exitEvent struct {
	workerID int
	pid      int
	exit     process.ExitStatus
}

type respawnEvent struct {
	workerID int
	proc     process.Process
	err      error
}

type allocationEvent struct {
	assignments []domain.Assignment
	err         error
}

type statsTick struct{}

type snapshotQuery struct {
	reply chan []domain.WorkerInfo
}

type broadcastCommand struct {
	msg   json.RawMessage
	reply chan int
}

func (e messageEvent) name() string { return "message." + string(e.env.Kind) }
func (exitEvent) name() string { return "exit" }
func (respawnEvent) name() string { return "respawn" }
func (allocationEvent) name() string { return "allocation" }
func (statsTick) name() string { return "stats" }
func (snapshotQuery) name() string { return "snapshot" }
func (broadcastCommand) name() string { return "broadcast" }
