package process

import "time"

// RestartPolicy ограничивает подряд идущие рестарты слота.
//
// Рестарт засчитывается, если предыдущий случился не раньше Window назад;
// иначе счётчик начинается заново. Reset вызывается, когда воркер
// подтвердил готовность, — после этого падение снова считается первым.
type RestartPolicy struct {
	// MaxRestarts — максимум подряд идущих рестартов (0 — без ограничения).
	MaxRestarts int

	// Window — окно, в котором рестарты считаются подряд идущими.
	Window time.Duration

	history map[int]restartState
}

type restartState struct {
	count int
	last  time.Time
}

// NewRestartPolicy создаёт политику.
func NewRestartPolicy(maxRestarts int, window time.Duration) *RestartPolicy {
	return &RestartPolicy{
		MaxRestarts: maxRestarts,
		Window:      window,
		history:     make(map[int]restartState),
	}
}

// Allow регистрирует попытку рестарта слота и сообщает, разрешена ли она.
func (p *RestartPolicy) Allow(workerID int, now time.Time) bool {
	st := p.history[workerID]
	if p.Window > 0 && !st.last.IsZero() && now.Sub(st.last) > p.Window {
		st.count = 0
	}
	st.count++
	st.last = now
	p.history[workerID] = st

	return p.MaxRestarts <= 0 || st.count <= p.MaxRestarts
}

// Reset сбрасывает счётчик слота.
func (p *RestartPolicy) Reset(workerID int) {
	delete(p.history, workerID)
}

// Count возвращает текущее число подряд идущих рестартов слота.
func (p *RestartPolicy) Count(workerID int) int {
	return p.history[workerID].count
}
