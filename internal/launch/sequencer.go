package launch

import (
	"log/slog"
	"time"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/protocol"
)

// Sender доставляет сообщение воркеру.
type Sender interface {
	Send(workerID int, env protocol.Envelope) error
}

// Item — элемент очереди запуска.
type Item struct {
	WorkerID   int
	Mode       domain.StartMode
	Envelope   protocol.Envelope
	EnqueuedAt time.Time
}

// Sequencer — очередь запуска с одним элементом в полёте.
type Sequencer struct {
	items        []Item
	inFlight     bool
	dispatchedAt time.Time

	sender     Sender
	ackTimeout time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Config — конфигурация Sequencer.
type Config struct {
	Sender Sender

	// AckTimeout — сколько ждать ready от головного воркера (0 — без ограничения).
	AckTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// New создаёт Sequencer.
func New(cfg Config) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sequencer{
		sender:     cfg.Sender,
		ackTimeout: cfg.AckTimeout,
		now:        now,
		logger:     logger,
	}
}

// Enqueue добавляет команду в конец очереди.
// Если очередь простаивала, команда отправляется сразу.
func (s *Sequencer) Enqueue(item Item) {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = s.now()
	}
	s.items = append(s.items, item)

	s.logger.Debug("launch item enqueued",
		"worker", item.WorkerID,
		"mode", item.Mode,
		"queue_len", len(s.items),
	)

	if !s.inFlight {
		s.dispatch()
	}
}

// Acknowledge обрабатывает ready от воркера.
// Подтверждать может только получатель головной команды; остальные игнорируются.
func (s *Sequencer) Acknowledge(workerID int) (Item, bool) {
	if !s.inFlight || len(s.items) == 0 {
		s.logger.Warn("ready received with no launch in flight", "worker", workerID)
		return Item{}, false
	}
	head := s.items[0]
	if head.WorkerID != workerID {
		s.logger.Warn("ready received from worker that is not at queue head",
			"worker", workerID,
			"head", head.WorkerID,
		)
		return Item{}, false
	}

	s.logger.Debug("launch acknowledged",
		"worker", workerID,
		"mode", head.Mode,
		"took", s.now().Sub(s.dispatchedAt),
	)

	s.advance()
	return head, true
}

// CancelHead снимает головную команду, если она адресована упавшему воркеру,
// и отправляет следующую.
func (s *Sequencer) CancelHead(workerID int) bool {
	if len(s.items) == 0 || s.items[0].WorkerID != workerID {
		return false
	}
	s.logger.Warn("launch cancelled, worker exited before ready", "worker", workerID)
	s.advance()
	return true
}

// Purge удаляет ещё не отправленные команды воркера (кроме головной).
// Возвращает количество удалённых элементов.
func (s *Sequencer) Purge(workerID int) int {
	if len(s.items) == 0 {
		return 0
	}
	kept := s.items[:1]
	removed := 0
	for _, it := range s.items[1:] {
		if it.WorkerID == workerID {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return removed
}

// Expire снимает головную команду, если подтверждение не пришло за AckTimeout.
func (s *Sequencer) Expire(now time.Time) (Item, bool) {
	if s.ackTimeout <= 0 || !s.inFlight || len(s.items) == 0 {
		return Item{}, false
	}
	if now.Sub(s.dispatchedAt) < s.ackTimeout {
		return Item{}, false
	}

	head := s.items[0]
	s.logger.Error("launch ack timeout, advancing queue",
		"worker", head.WorkerID,
		"mode", head.Mode,
		"timeout", s.ackTimeout,
	)
	s.advance()
	return head, true
}

// Head возвращает головную команду, если она в полёте.
func (s *Sequencer) Head() (Item, bool) {
	if !s.inFlight || len(s.items) == 0 {
		return Item{}, false
	}
	return s.items[0], true
}

// Len возвращает длину очереди, включая команду в полёте.
func (s *Sequencer) Len() int {
	return len(s.items)
}

// InFlight возвращает true, если головная команда ожидает подтверждения.
func (s *Sequencer) InFlight() bool {
	return s.inFlight
}

// advance снимает голову и отправляет следующую команду.
func (s *Sequencer) advance() {
	s.items[0] = Item{}
	s.items = s.items[1:]
	s.inFlight = false
	s.dispatch()
}

// dispatch отправляет головную команду. Команда, которую не удалось
// доставить, снимается, и отправляется следующая.
func (s *Sequencer) dispatch() {
	for len(s.items) > 0 {
		head := s.items[0]
		if err := s.sender.Send(head.WorkerID, head.Envelope); err != nil {
			s.logger.Error("failed to dispatch launch item",
				"worker", head.WorkerID,
				"mode", head.Mode,
				"error", err,
			)
			s.items[0] = Item{}
			s.items = s.items[1:]
			continue
		}
		s.inFlight = true
		s.dispatchedAt = s.now()
		s.logger.Info("launch dispatched",
			"worker", head.WorkerID,
			"mode", head.Mode,
			"remaining", len(s.items)-1,
		)
		return
	}
	s.inFlight = false
}
