package stats

import (
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/protocol"
)

const (
	// bytesPerMB — RAM воркеров приходит в байтах, агрегат хранит MB.
	bytesPerMB = 1_000_000

	defaultTimeout = 5 * time.Second
)

// EmitFunc получает готовый агрегат.
type EmitFunc func(domain.ClusterStats)

// Aggregator накапливает ответы воркеров за один раунд.
type Aggregator struct {
	open      bool
	round     string
	expected  []int
	skipped   []int
	received  map[int]struct{}
	startedAt time.Time
	acc       domain.ClusterStats

	timeout time.Duration
	emit    EmitFunc
	newID   func() string
	logger  *slog.Logger
}

// Config — конфигурация Aggregator.
type Config struct {
	// Timeout — мягкий таймаут раунда (default: 5s).
	Timeout time.Duration
	Emit    EmitFunc
	Logger  *slog.Logger
	NewID   func() string
}

// New создаёт Aggregator.
func New(cfg Config) *Aggregator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	emit := cfg.Emit
	if emit == nil {
		emit = func(domain.ClusterStats) {}
	}
	return &Aggregator{
		timeout: timeout,
		emit:    emit,
		newID:   newID,
		logger:  logger,
	}
}

// Begin открывает новый раунд для указанных воркеров и возвращает его id.
// Незакрытый предыдущий раунд публикуется как частичный.
func (a *Aggregator) Begin(workerIDs []int, now time.Time) string {
	if a.open {
		a.logger.Warn("stats round still open at next interval", "round", a.round)
		a.close(now, false)
	}

	a.open = true
	a.round = a.newID()
	a.expected = slices.Clone(workerIDs)
	slices.Sort(a.expected)
	a.skipped = nil
	a.received = make(map[int]struct{}, len(workerIDs))
	a.startedAt = now
	a.acc = domain.ClusterStats{Round: a.round, Clusters: []domain.WorkerStats{}}

	if len(a.expected) == 0 {
		a.close(now, true)
	}
	return a.round
}

// Report учитывает ответ воркера. Ответ на чужой или закрытый раунд,
// повторный ответ и ответ от воркера вне раунда игнорируются.
// Пустой round относится к текущему раунду.
func (a *Aggregator) Report(workerID int, round string, report protocol.StatsReport, now time.Time) bool {
	if !a.open || (round != "" && round != a.round) {
		a.logger.Debug("late stats report ignored", "worker", workerID, "round", round)
		return false
	}
	if _, ok := slices.BinarySearch(a.expected, workerID); !ok {
		a.logger.Debug("stats report from worker outside round", "worker", workerID)
		return false
	}
	if _, dup := a.received[workerID]; dup {
		return false
	}
	a.received[workerID] = struct{}{}

	ram := float64(report.RAM) / bytesPerMB
	a.acc.Guilds += report.Guilds
	a.acc.Users += report.Users
	a.acc.Shards += report.Shards
	a.acc.TotalRAM += ram
	a.acc.ExclusiveGuilds += report.ExclusiveGuilds
	a.acc.LargeGuilds += report.LargeGuilds
	a.acc.Clusters = append(a.acc.Clusters, domain.WorkerStats{
		Cluster:         workerID,
		Shards:          report.Shards,
		Guilds:          report.Guilds,
		Users:           report.Users,
		RAM:             ram,
		Uptime:          report.Uptime,
		ExclusiveGuilds: report.ExclusiveGuilds,
		LargeGuilds:     report.LargeGuilds,
	})

	if len(a.received) == len(a.expected) {
		a.close(now, len(a.skipped) == 0)
	}
	return true
}

// Skip снимает воркера с ожидания: запрос до него не дошёл.
// Раунд закрывается без него, а воркер попадает в Missing.
func (a *Aggregator) Skip(workerID int, now time.Time) {
	if !a.open {
		return
	}
	if _, got := a.received[workerID]; got {
		return
	}
	i, ok := slices.BinarySearch(a.expected, workerID)
	if !ok {
		return
	}
	a.expected = slices.Delete(a.expected, i, i+1)
	a.skipped = append(a.skipped, workerID)

	if len(a.received) == len(a.expected) {
		a.close(now, false)
	}
}

// Expire закрывает раунд частичным агрегатом, если истёк таймаут.
func (a *Aggregator) Expire(now time.Time) bool {
	if !a.open || now.Sub(a.startedAt) < a.timeout {
		return false
	}
	a.logger.Warn("stats round timed out",
		"round", a.round,
		"received", len(a.received),
		"expected", len(a.expected),
	)
	a.close(now, false)
	return true
}

// IsOpen возвращает true, если раунд ожидает ответов.
func (a *Aggregator) IsOpen() bool {
	return a.open
}

// close публикует агрегат и закрывает раунд.
func (a *Aggregator) close(now time.Time, complete bool) {
	out := a.acc
	out.Complete = complete
	out.CollectedAt = now
	slices.SortFunc(out.Clusters, func(x, y domain.WorkerStats) int {
		return x.Cluster - y.Cluster
	})
	if !complete {
		for _, id := range a.expected {
			if _, ok := a.received[id]; !ok {
				out.Missing = append(out.Missing, id)
			}
		}
		out.Missing = append(out.Missing, a.skipped...)
		slices.Sort(out.Missing)
	}

	a.open = false
	a.received = nil
	a.skipped = nil
	a.acc = domain.ClusterStats{}

	a.emit(out)
}
