package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/notify"
	"github.com/shaiso/Sharder/internal/process"
	"github.com/shaiso/Sharder/internal/protocol"
	"github.com/shaiso/Sharder/internal/telemetry"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// --- fakes ---

// fakeSpawner создаёт процессы в памяти. С autoReady процессы отвечают
// ready на start, statsReport на statsRequest и fetchResponse по entities.
type fakeSpawner struct {
	autoReady bool
	entities  map[int]map[string]json.RawMessage
	failFor   map[int]bool

	mu      sync.Mutex
	nextPID int
	procs   map[int][]*fakeProcess
	onSpawn func(p *fakeProcess)
}

func newFakeSpawner(autoReady bool) *fakeSpawner {
	return &fakeSpawner{
		autoReady: autoReady,
		entities:  make(map[int]map[string]json.RawMessage),
		failFor:   make(map[int]bool),
		procs:     make(map[int][]*fakeProcess),
	}
}

func (s *fakeSpawner) Spawn(_ context.Context, workerID int, events process.Events) (process.Process, error) {
	s.mu.Lock()
	if s.failFor[workerID] {
		s.mu.Unlock()
		return nil, errors.New("exec: worker binary not found")
	}
	s.nextPID++
	p := &fakeProcess{
		spawner:  s,
		workerID: workerID,
		pid:      1000 + s.nextPID,
		events:   events,
	}
	s.procs[workerID] = append(s.procs[workerID], p)
	hook := s.onSpawn
	s.onSpawn = nil
	s.mu.Unlock()

	// Хук срабатывает до того, как оркестратор узнает о процессе.
	if hook != nil {
		hook(p)
	}
	return p, nil
}

// setOnSpawn задаёт одноразовый хук для следующего Spawn.
func (s *fakeSpawner) setOnSpawn(fn func(p *fakeProcess)) {
	s.mu.Lock()
	s.onSpawn = fn
	s.mu.Unlock()
}

// current возвращает последний процесс слота.
func (s *fakeSpawner) current(workerID int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.procs[workerID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (s *fakeSpawner) spawned(workerID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs[workerID])
}

type fakeProcess struct {
	spawner  *fakeSpawner
	workerID int
	pid      int
	events   process.Events

	mu       sync.Mutex
	received []protocol.Envelope
	shards   int
	exited   bool
}

func (p *fakeProcess) PID() int {
	return p.pid
}

func (p *fakeProcess) Send(env protocol.Envelope) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return process.ErrProcessExited
	}
	p.received = append(p.received, env)
	p.mu.Unlock()

	if p.spawner.autoReady {
		go p.respond(env)
	}
	return nil
}

func (p *fakeProcess) Terminate(time.Duration) {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
}

func (p *fakeProcess) respond(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindStart:
		cmd, _ := protocol.ParsePayload[protocol.StartPayload](env)
		p.mu.Lock()
		p.shards = cmd.ShardCount
		p.mu.Unlock()
		p.reply(protocol.KindReady, "", nil)

	case protocol.KindStatsRequest:
		p.mu.Lock()
		shards := p.shards
		p.mu.Unlock()
		p.reply(protocol.KindStatsReport, env.CorrelationID, protocol.StatsReport{
			Shards: shards,
			Guilds: 100 * p.workerID,
			Users:  1000 * p.workerID,
			RAM:    50_000_000,
		})

	case protocol.KindFetchRequest:
		req, _ := protocol.ParsePayload[protocol.FetchRequest](env)
		p.spawner.mu.Lock()
		value, found := p.spawner.entities[p.workerID][req.EntityKind+"/"+req.EntityID]
		p.spawner.mu.Unlock()
		p.reply(protocol.KindFetchResponse, env.CorrelationID, protocol.FetchResponse{Found: found, Value: value})
	}
}

func (p *fakeProcess) reply(kind protocol.Kind, correlationID string, payload any) {
	env := protocol.MustNew(kind, p.workerID, payload).WithCorrelation(correlationID)
	p.events.OnMessage(p.workerID, p.pid, env)
}

func (p *fakeProcess) crash(code int) {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
	p.events.OnExit(p.workerID, p.pid, process.ExitStatus{Code: code})
}

// receivedOf возвращает полученные сообщения указанного kind.
func (p *fakeProcess) receivedOf(kind protocol.Kind) []protocol.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range p.received {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

type notification struct {
	scope notify.Scope
	embed notify.Embed
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notification
}

func (n *recordingNotifier) Notify(scope notify.Scope, raw json.RawMessage) {
	var e notify.Embed
	_ = json.Unmarshal(raw, &e)
	n.mu.Lock()
	n.items = append(n.items, notification{scope: scope, embed: e})
	n.mu.Unlock()
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.items))
	for _, it := range n.items {
		out = append(out, it.embed.Title)
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixedGateway int

func (g fixedGateway) RecommendedShards(context.Context) (int, error) {
	return int(g), nil
}

// --- helpers ---

func testConfig(spawner process.Spawner, workers, shards int) Config {
	return Config{
		Spawner:        spawner,
		Metrics:        telemetry.NewMetrics(prometheus.NewRegistry()),
		Shards:         shards,
		Workers:        workers,
		GuildsPerShard: 1000,
		SweepInterval:  10 * time.Millisecond,
		FetchTimeout:   time.Second,
		StatsTimeout:   time.Second,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func startOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *eventLog) {
	t.Helper()

	o := New(cfg)
	events := &eventLog{}
	o.OnEvent(events.record)

	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(o.Stop)
	return o, events
}

func workerInfo(t *testing.T, o *Orchestrator, id int) (domain.WorkerInfo, bool) {
	t.Helper()
	infos, err := o.Snapshot(context.Background())
	require.NoError(t, err)
	for _, info := range infos {
		if info.ID == id {
			return info, true
		}
	}
	return domain.WorkerInfo{}, false
}

func waitStatus(t *testing.T, o *Orchestrator, id int, status domain.WorkerStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := workerInfo(t, o, id)
		return ok && info.Status == status
	}, waitFor, tick, "worker %d never reached %s", id, status)
}

// --- tests ---

func TestOrchestrator_StartupSpreadsShardsSequentially(t *testing.T) {
	fs := newFakeSpawner(false)
	o, events := startOrchestrator(t, testConfig(fs, 2, 10))

	require.Eventually(t, func() bool {
		return len(fs.current(1).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)

	// Второй воркер ждёт ready от первого.
	require.Never(t, func() bool {
		return len(fs.current(2).receivedOf(protocol.KindStart)) > 0
	}, 50*time.Millisecond, tick)

	fs.current(1).reply(protocol.KindReady, "", nil)

	require.Eventually(t, func() bool {
		return len(fs.current(2).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)
	fs.current(2).reply(protocol.KindReady, "", nil)

	waitStatus(t, o, 1, domain.WorkerStatusConnected)
	waitStatus(t, o, 2, domain.WorkerStatusConnected)

	w1, _ := workerInfo(t, o, 1)
	w2, _ := workerInfo(t, o, 2)
	require.Equal(t, domain.ShardRange{First: 0, Last: 4}, w1.Range)
	require.Equal(t, domain.ShardRange{First: 5, Last: 9}, w2.Range)

	start, err := protocol.ParsePayload[protocol.StartPayload](fs.current(2).receivedOf(protocol.KindStart)[0])
	require.NoError(t, err)
	require.Equal(t, domain.StartModeStart, start.Mode)
	require.Equal(t, 10, start.MaxShards)

	require.Equal(t, 1, events.count(EventShardsSpread))
	require.Equal(t, 2, events.count(EventWorkerSpawned))
	require.Equal(t, 2, events.count(EventWorkerReady))
}

func TestOrchestrator_ReadyFromNonHeadIgnored(t *testing.T) {
	fs := newFakeSpawner(false)
	o, _ := startOrchestrator(t, testConfig(fs, 2, 4))

	require.Eventually(t, func() bool {
		return len(fs.current(1).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)

	fs.current(2).reply(protocol.KindReady, "", nil)

	require.Never(t, func() bool {
		return len(fs.current(2).receivedOf(protocol.KindStart)) > 0
	}, 50*time.Millisecond, tick)

	info, _ := workerInfo(t, o, 2)
	require.Equal(t, domain.WorkerStatusAssigned, info.Status)
}

func TestOrchestrator_ReadyTimeoutAdvancesQueue(t *testing.T) {
	fs := newFakeSpawner(false)
	cfg := testConfig(fs, 2, 4)
	cfg.ReadyTimeout = 30 * time.Millisecond
	startOrchestrator(t, cfg)

	require.Eventually(t, func() bool {
		return len(fs.current(2).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)
	require.GreaterOrEqual(t, testutil.ToFloat64(cfg.Metrics.LaunchTimeouts), 1.0)
}

func TestOrchestrator_RestartResumesRange(t *testing.T) {
	fs := newFakeSpawner(true)
	notifier := &recordingNotifier{}
	cfg := testConfig(fs, 2, 10)
	cfg.Notifier = notifier
	o, events := startOrchestrator(t, cfg)

	waitStatus(t, o, 2, domain.WorkerStatusConnected)
	before, _ := workerInfo(t, o, 2)

	fs.current(2).crash(1)

	require.Eventually(t, func() bool {
		return fs.spawned(2) == 2 && len(fs.current(2).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)

	resume, err := protocol.ParsePayload[protocol.StartPayload](fs.current(2).receivedOf(protocol.KindStart)[0])
	require.NoError(t, err)
	require.Equal(t, domain.StartModeResume, resume.Mode)
	require.Equal(t, 5, resume.FirstShardID)
	require.Equal(t, 9, resume.LastShardID)
	require.Equal(t, 5, resume.ShardCount)

	waitStatus(t, o, 2, domain.WorkerStatusConnected)
	after, _ := workerInfo(t, o, 2)
	require.NotEqual(t, before.PID, after.PID)
	require.Equal(t, 1, after.Restarts)
	require.Equal(t, before.Range, after.Range)

	require.Contains(t, notifier.titles(), "Cluster 2 died with code 1. Restarting...")
	require.Equal(t, 1, events.count(EventWorkerDied))
	require.Equal(t, 1, events.count(EventWorkerRestarted))

	// Статистика после рестарта учитывает все шарды.
	require.NoError(t, o.RequestStats(context.Background()))
	require.Eventually(t, func() bool {
		s, ok := o.LatestStats()
		return ok && s.Complete
	}, waitFor, tick)

	s, _ := o.LatestStats()
	require.Equal(t, 10, s.Shards)
	require.Equal(t, 300, s.Guilds)
	require.Equal(t, 3000, s.Users)
	require.InDelta(t, 100.0, s.TotalRAM, 0.001)
	require.Len(t, s.Clusters, 2)
	require.Equal(t, 1, s.Clusters[0].Cluster)
	require.Equal(t, 2, s.Clusters[1].Cluster)
}

func TestOrchestrator_ZeroShardWorkerRestartsWithoutResume(t *testing.T) {
	fs := newFakeSpawner(true)
	o, _ := startOrchestrator(t, testConfig(fs, 2, 1))

	waitStatus(t, o, 1, domain.WorkerStatusConnected)
	info, _ := workerInfo(t, o, 2)
	require.Equal(t, 0, info.ShardCount)
	require.Empty(t, fs.current(2).receivedOf(protocol.KindStart))

	fs.current(2).crash(137)

	require.Eventually(t, func() bool { return fs.spawned(2) == 2 }, waitFor, tick)
	require.Never(t, func() bool {
		return len(fs.current(2).receivedOf(protocol.KindStart)) > 0
	}, 50*time.Millisecond, tick)

	info, _ = workerInfo(t, o, 2)
	require.Equal(t, domain.WorkerStatusRegistered, info.Status)
	require.True(t, info.Range.IsEmpty())
}

func TestOrchestrator_RestartLimitRetiresWorker(t *testing.T) {
	fs := newFakeSpawner(false)
	notifier := &recordingNotifier{}
	cfg := testConfig(fs, 2, 2)
	cfg.Notifier = notifier
	cfg.MaxRestarts = 1
	cfg.RestartWindow = time.Hour
	o, events := startOrchestrator(t, cfg)

	require.Eventually(t, func() bool {
		return len(fs.current(1).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)

	fs.current(2).crash(1)
	require.Eventually(t, func() bool { return fs.spawned(2) == 2 }, waitFor, tick)

	fs.current(2).crash(1)
	require.Eventually(t, func() bool {
		_, ok := workerInfo(t, o, 2)
		return !ok
	}, waitFor, tick)

	require.Equal(t, 2, fs.spawned(2))
	require.Equal(t, 1, events.count(EventWorkerRetired))
	require.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.WorkersRetired))
	require.Contains(t, notifier.titles(), "Cluster 2 retired: restart limit of 1 reached")

	// Выведенный воркер больше не получает start, даже когда очередь двигается.
	fs.current(1).reply(protocol.KindReady, "", nil)
	waitStatus(t, o, 1, domain.WorkerStatusConnected)
	require.Empty(t, fs.current(2).receivedOf(protocol.KindStart))
}

func TestOrchestrator_ReplacementEventsBeforeInstallAreReplayed(t *testing.T) {
	fs := newFakeSpawner(true)
	cfg := testConfig(fs, 1, 2)
	cfg.MaxRestarts = 5
	cfg.RestartWindow = time.Hour
	o, events := startOrchestrator(t, cfg)

	waitStatus(t, o, 1, domain.WorkerStatusConnected)

	// Первая замена пишет в лог и падает раньше, чем цикл её установит.
	fs.setOnSpawn(func(p *fakeProcess) {
		p.reply(protocol.KindInfo, "", protocol.LogPayload{Message: "booting"})
		p.crash(2)
	})
	fs.current(1).crash(1)

	require.Eventually(t, func() bool { return fs.spawned(1) == 3 }, waitFor, tick)
	waitStatus(t, o, 1, domain.WorkerStatusConnected)

	info, _ := workerInfo(t, o, 1)
	require.Equal(t, 2, info.Restarts)
	require.Equal(t, fs.current(1).pid, info.PID)
	require.Equal(t, domain.ShardRange{First: 0, Last: 1}, info.Range)
	require.Equal(t, 2, events.count(EventWorkerDied))
	require.Equal(t, 2, events.count(EventWorkerRestarted))
}

func TestOrchestrator_RestartDuringAllocationStartsOnce(t *testing.T) {
	fs := newFakeSpawner(false)
	cfg := testConfig(fs, 2, 10)
	cfg.StepsPerSecond = 50
	cfg.MaxRestarts = 5
	cfg.RestartWindow = time.Hour
	o, _ := startOrchestrator(t, cfg)

	// Замена второго воркера задерживается до конца распределения.
	gate := make(chan struct{})
	release := sync.OnceFunc(func() { close(gate) })
	defer release()
	fs.setOnSpawn(func(*fakeProcess) { <-gate })

	fs.current(2).crash(1)
	waitStatus(t, o, 2, domain.WorkerStatusRestarting)

	require.Eventually(t, func() bool {
		return len(fs.current(1).receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)

	release()
	require.Eventually(t, func() bool {
		info, ok := workerInfo(t, o, 2)
		return ok && fs.spawned(2) == 2 && info.PID == fs.current(2).pid
	}, waitFor, tick)

	fs.current(1).reply(protocol.KindReady, "", nil)

	replacement := fs.current(2)
	require.Eventually(t, func() bool {
		return len(replacement.receivedOf(protocol.KindStart)) == 1
	}, waitFor, tick)
	require.Never(t, func() bool {
		return len(replacement.receivedOf(protocol.KindStart)) > 1
	}, 50*time.Millisecond, tick)

	start, err := protocol.ParsePayload[protocol.StartPayload](replacement.receivedOf(protocol.KindStart)[0])
	require.NoError(t, err)
	require.Equal(t, domain.StartModeStart, start.Mode)
	require.Equal(t, 5, start.FirstShardID)
	require.Equal(t, 9, start.LastShardID)

	replacement.reply(protocol.KindReady, "", nil)
	waitStatus(t, o, 2, domain.WorkerStatusConnected)
	require.Equal(t, 0.0, testutil.ToFloat64(cfg.Metrics.LaunchQueueDepth))
}

func TestOrchestrator_FetchFirstFoundWins(t *testing.T) {
	fs := newFakeSpawner(true)
	fs.entities[2] = map[string]json.RawMessage{"guild/42": json.RawMessage(`{"name":"answers"}`)}
	o, _ := startOrchestrator(t, testConfig(fs, 3, 3))

	waitStatus(t, o, 3, domain.WorkerStatusConnected)

	origin := fs.current(1)
	origin.reply(protocol.KindFetchRequest, "", protocol.FetchRequest{
		EntityKind: "guild",
		EntityID:   "42",
		RequestID:  "req-1",
	})
	origin.reply(protocol.KindFetchRequest, "", protocol.FetchRequest{
		EntityKind: "guild",
		EntityID:   "7",
		RequestID:  "req-2",
	})

	require.Eventually(t, func() bool {
		return len(origin.receivedOf(protocol.KindFetchResult)) == 2
	}, waitFor, tick)

	results := map[string]protocol.FetchResult{}
	for _, env := range origin.receivedOf(protocol.KindFetchResult) {
		r, err := protocol.ParsePayload[protocol.FetchResult](env)
		require.NoError(t, err)
		results[r.RequestID] = r
	}

	require.True(t, results["req-1"].Found)
	require.JSONEq(t, `{"name":"answers"}`, string(results["req-1"].Value))
	require.False(t, results["req-2"].Found)

	// Результат получает только инициатор.
	require.Empty(t, fs.current(2).receivedOf(protocol.KindFetchResult))
	require.Empty(t, fs.current(3).receivedOf(protocol.KindFetchResult))
}

func TestOrchestrator_SendAndBroadcast(t *testing.T) {
	fs := newFakeSpawner(true)
	o, _ := startOrchestrator(t, testConfig(fs, 3, 3))
	waitStatus(t, o, 3, domain.WorkerStatusConnected)

	fs.current(1).reply(protocol.KindSend, "", protocol.SendPayload{Target: 3, Message: json.RawMessage(`"hello"`)})
	fs.current(1).reply(protocol.KindSend, "", protocol.SendPayload{Target: 9, Message: json.RawMessage(`"lost"`)})

	require.Eventually(t, func() bool {
		return len(fs.current(3).receivedOf(protocol.KindSend)) == 1
	}, waitFor, tick)
	require.Empty(t, fs.current(2).receivedOf(protocol.KindSend))

	n, err := o.Broadcast(context.Background(), json.RawMessage(`{"op":"reload"}`))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	fs.current(2).reply(protocol.KindBroadcast, "", protocol.BroadcastPayload{Message: json.RawMessage(`"ping"`)})
	require.Eventually(t, func() bool {
		for id := 1; id <= 3; id++ {
			if len(fs.current(id).receivedOf(protocol.KindBroadcast)) != 2 {
				return false
			}
		}
		return true
	}, waitFor, tick)
}

func TestOrchestrator_InvalidAndStaleMessages(t *testing.T) {
	fs := newFakeSpawner(true)
	cfg := testConfig(fs, 1, 1)
	o, _ := startOrchestrator(t, cfg)
	waitStatus(t, o, 1, domain.WorkerStatusConnected)

	old := fs.current(1)
	old.crash(1)
	require.Eventually(t, func() bool { return fs.spawned(1) == 2 }, waitFor, tick)
	waitStatus(t, o, 1, domain.WorkerStatusConnected)

	// Сообщение от старого процесса отбрасывается без учёта.
	old.events.OnMessage(1, old.pid, protocol.Envelope{Kind: "bogus"})

	cur := fs.current(1)
	cur.events.OnMessage(1, cur.pid, protocol.Envelope{Kind: "bogus"})
	cur.reply(protocol.KindStart, "", protocol.StartPayload{})
	cur.events.OnMessage(1, cur.pid, protocol.Envelope{Kind: protocol.KindStatsReport, Payload: json.RawMessage(`[1,2]`)})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(cfg.Metrics.ProtocolViolations.WithLabelValues("bogus")) == 1 &&
			testutil.ToFloat64(cfg.Metrics.ProtocolViolations.WithLabelValues(string(protocol.KindStart))) == 1 &&
			testutil.ToFloat64(cfg.Metrics.ProtocolViolations.WithLabelValues(string(protocol.KindStatsReport))) == 1
	}, waitFor, tick)

	// Цикл продолжает работать.
	_, err := o.Snapshot(context.Background())
	require.NoError(t, err)
}

func TestOrchestrator_StatsTimeoutEmitsPartial(t *testing.T) {
	fs := newFakeSpawner(true)
	cfg := testConfig(fs, 2, 2)
	cfg.StatsTimeout = 30 * time.Millisecond
	o, events := startOrchestrator(t, cfg)
	waitStatus(t, o, 2, domain.WorkerStatusConnected)

	// Второй воркер перестаёт отвечать.
	fs.current(2).Terminate(0)

	require.NoError(t, o.RequestStats(context.Background()))
	require.Eventually(t, func() bool {
		_, ok := o.LatestStats()
		return ok
	}, waitFor, tick)

	s, _ := o.LatestStats()
	require.False(t, s.Complete)
	require.Equal(t, []int{2}, s.Missing)
	require.Equal(t, 100, s.Guilds)
	require.Equal(t, 1, events.count(EventStats))
	require.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.StatsIncomplete))
}

func TestOrchestrator_StatsRoundSkipsUnreachableWorker(t *testing.T) {
	fs := newFakeSpawner(true)
	cfg := testConfig(fs, 2, 2)
	cfg.StatsTimeout = time.Hour
	o, _ := startOrchestrator(t, cfg)
	waitStatus(t, o, 2, domain.WorkerStatusConnected)

	fs.current(2).Terminate(0)

	require.NoError(t, o.RequestStats(context.Background()))
	require.Eventually(t, func() bool {
		_, ok := o.LatestStats()
		return ok
	}, waitFor, tick)

	s, _ := o.LatestStats()
	require.False(t, s.Complete)
	require.Equal(t, []int{2}, s.Missing)
	require.Equal(t, 1, s.Shards)
}

func TestOrchestrator_StatsSinksReceiveAggregate(t *testing.T) {
	fs := newFakeSpawner(true)
	got := make(chan domain.ClusterStats, 1)
	cfg := testConfig(fs, 1, 1)
	cfg.StatsSinks = []StatsSink{StatsSinkFunc(func(_ context.Context, s domain.ClusterStats) error {
		got <- s
		return nil
	})}
	o, _ := startOrchestrator(t, cfg)
	waitStatus(t, o, 1, domain.WorkerStatusConnected)

	require.NoError(t, o.RequestStats(context.Background()))

	select {
	case s := <-got:
		require.True(t, s.Complete)
		require.Equal(t, 1, s.Shards)
	case <-time.After(waitFor):
		t.Fatal("sink did not receive stats")
	}
}

func TestOrchestrator_AutoShardCount(t *testing.T) {
	fs := newFakeSpawner(true)
	cfg := testConfig(fs, 2, 0)
	cfg.GuildsPerShard = 2000
	cfg.Gateway = fixedGateway(4)
	o, _ := startOrchestrator(t, cfg)

	require.Equal(t, 2, o.Plan().TotalShards)
	require.Equal(t, 4, o.Plan().Recommended)
	waitStatus(t, o, 2, domain.WorkerStatusConnected)
}

func TestOrchestrator_StartErrors(t *testing.T) {
	t.Run("no gateway", func(t *testing.T) {
		o := New(testConfig(newFakeSpawner(true), 1, 0))
		require.ErrorIs(t, o.Start(context.Background()), ErrNoGateway)
	})

	t.Run("spawn failure", func(t *testing.T) {
		fs := newFakeSpawner(true)
		fs.failFor[2] = true
		cfg := testConfig(fs, 3, 3)
		cfg.SpawnRetries = 2
		o := New(cfg)

		err := o.Start(context.Background())
		require.ErrorIs(t, err, process.ErrSpawnFailed)
		require.Equal(t, 0, fs.spawned(2))
		o.Stop()
	})

	t.Run("double start", func(t *testing.T) {
		o, _ := startOrchestrator(t, testConfig(newFakeSpawner(true), 1, 1))
		require.ErrorIs(t, o.Start(context.Background()), ErrAlreadyStarted)
	})

	t.Run("not running", func(t *testing.T) {
		o := New(testConfig(newFakeSpawner(true), 1, 1))
		_, err := o.Snapshot(context.Background())
		require.ErrorIs(t, err, ErrNotRunning)
	})
}

func TestOrchestrator_StopTerminatesWorkers(t *testing.T) {
	fs := newFakeSpawner(true)
	o := New(testConfig(fs, 2, 2))
	require.NoError(t, o.Start(context.Background()))
	waitStatus(t, o, 2, domain.WorkerStatusConnected)

	o.Stop()

	for id := 1; id <= 2; id++ {
		p := fs.current(id)
		require.Len(t, p.receivedOf(protocol.KindShutdown), 1)
		p.mu.Lock()
		require.True(t, p.exited)
		p.mu.Unlock()
	}

	_, err := o.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)
}
