// Package update описывает входящие обновления бота и контракт их
// однократной обработки (claim). Внешних зависимостей нет.
package update

import (
	"context"
	"encoding/json"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
)

// ID - идентификатор обновления, присвоенный платформой.
// Уникален в пределах бота и монотонно растёт.
type ID int64

// IsValid проверяет, что идентификатор положительный.
func (id ID) IsValid() bool { return id > 0 }

// Kind - тип обновления, определяющий обработчик.
type Kind string

const (
	KindCommand       Kind = "command"
	KindWebAppData    Kind = "web_app_data"
	KindCallbackQuery Kind = "callback_query"
	KindMessage       Kind = "message"
	KindUnknown       Kind = "unknown"
)

// Kinds перечисляет все типы обновлений.
var Kinds = []Kind{KindCommand, KindWebAppData, KindCallbackQuery, KindMessage, KindUnknown}

// InboundUpdate - одно обновление, полученное через вебхук.
// Payload хранится как есть для аудита.
type InboundUpdate struct {
	ID         ID
	Kind       Kind
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Validate проверяет минимальную корректность обновления.
func (u InboundUpdate) Validate() error {
	if !u.ID.IsValid() {
		return shared.ErrMissingUpdateID
	}
	return nil
}

// Claimer записывает факт обработки обновления.
//
// TryClaim возвращает true только для вызова, который первым записал ID.
// Для всех последующих вызовов с тем же ID (в том числе конкурентных
// и из других экземпляров) возвращается false. При ошибке хранилища
// вызывающая сторона не должна считать обновление записанным.
type Claimer interface {
	TryClaim(ctx context.Context, u InboundUpdate) (bool, error)
}

// ClaimerFunc адаптирует функцию к интерфейсу Claimer.
type ClaimerFunc func(ctx context.Context, u InboundUpdate) (bool, error)

// TryClaim вызывает f(ctx, u).
func (f ClaimerFunc) TryClaim(ctx context.Context, u InboundUpdate) (bool, error) {
	return f(ctx, u)
}
