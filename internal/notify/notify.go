// Package notify доставляет уведомления оркестратора и воркеров во внешние каналы.
//
// Уведомления fire-and-forget: Notify не блокирует цикл событий, ошибки
// доставки логируются и не возвращаются вызывающему.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Scope — канал уведомления.
type Scope string

// Известные scope.
const (
	ScopeCluster Scope = "cluster"
	ScopeShard   Scope = "shard"
)

const deliveryTimeout = 10 * time.Second

// Notifier — получатель уведомлений.
type Notifier interface {
	Notify(scope Scope, embed json.RawMessage)
}

// Embed — минимальное уведомление с заголовком и описанием.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Raw сериализует embed.
func (e Embed) Raw() json.RawMessage {
	b, _ := json.Marshal(e)
	return b
}

// Nop — Notifier, который ничего не делает.
type Nop struct{}

func (Nop) Notify(Scope, json.RawMessage) {}

// Multi рассылает уведомление всем вложенным Notifier.
type Multi []Notifier

func (m Multi) Notify(scope Scope, embed json.RawMessage) {
	for _, n := range m {
		n.Notify(scope, embed)
	}
}

// deliverFunc выполняет доставку одного уведомления.
type deliverFunc func(ctx context.Context, scope Scope, embed json.RawMessage) error

// async выполняет доставки в фоне с таймаутом и ждёт их в Close.
type async struct {
	name    string
	deliver deliverFunc
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func (a *async) Notify(scope Scope, embed json.RawMessage) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := a.deliver(ctx, scope, embed); err != nil {
			a.logger.Warn("notification delivery failed",
				"sink", a.name,
				"scope", scope,
				"error", err,
			)
		}
	}()
}

// Wait ждёт завершения начатых доставок.
func (a *async) Wait() {
	a.wg.Wait()
}
