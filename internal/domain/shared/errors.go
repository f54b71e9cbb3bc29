// Package shared содержит базовые ошибки домена, общие для всех пакетов.
// Внешних зависимостей нет.
package shared

import (
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// КАТЕГОРИИ ОШИБОК
// Интерфейсный слой выбирает HTTP-статус или ответ бота по категории,
// проверяя её через errors.Is.
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNotFound = errors.New("not found")

	// Некорректные данные от клиента.
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// Некорректный апдейт от платформы или битый JSON.
	ErrBadRequest = errors.New("bad request")

	ErrConflict  = errors.New("conflict")
	ErrCooldown  = errors.New("cooldown active")
	ErrForbidden = errors.New("forbidden")

	// Инфраструктура. ErrPoolExhausted и ErrServiceUnavailable - временные:
	// клиент может повторить запрос.
	ErrPoolExhausted      = errors.New("connection pool exhausted")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrStorage            = errors.New("storage failure")
	ErrExternalService    = errors.New("external service error")
)

// DomainError - ошибка с понятным пользователю текстом.
// Message можно показывать клиенту как есть; Kind - категория из списка выше.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
}

func (e *DomainError) Error() string {
	return e.Domain + "." + e.Op + ": " + e.Message
}

// Unwrap позволяет errors.Is находить категорию.
func (e *DomainError) Unwrap() error { return e.Kind }

// NewDomainError создаёт ошибку домена.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// ─────────────────────────────────────────────────────────────────────────────
// Игрок
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrPlayerNotFound      = NewDomainError("player", "Find", ErrNotFound, "player not found")
	ErrInvalidPlayerID     = NewDomainError("player", "Validate", ErrInvalidID, "invalid player ID")
	ErrInvalidAmount       = NewDomainError("player", "Validate", ErrValueOutOfRange, "amount must be a positive number")
	ErrInsufficientBalance = NewDomainError("player", "Debit", ErrConflict, "insufficient balance")
	ErrUnknownBonusKind    = NewDomainError("player", "ClaimBonus", ErrInvalidInput, "unknown bonus kind")
	ErrNotAdmin            = NewDomainError("player", "Grant", ErrForbidden, "admin privileges required")
)

// ─────────────────────────────────────────────────────────────────────────────
// Апдейты
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrMissingUpdateID = NewDomainError("update", "Parse", ErrBadRequest, "update_id is missing")
	ErrMalformedUpdate = NewDomainError("update", "Parse", ErrBadRequest, "malformed update payload")
)

// IsNotFound - сущность не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation - клиент прислал некорректные данные.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict - операция противоречит текущему состоянию (включая кулдаун).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrCooldown)
}

// IsTransient - запрос можно повторить позже.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrServiceUnavailable)
}
