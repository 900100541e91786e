package appstatus

import (
	"context"
	"errors"
	"fmt"

	"interview-gateway/internal/store"
)

// ErrSkipped нет пользователя или вакансии, синхронизация не нужна
var ErrSkipped = errors.New("status sync skipped")

// Applications доступ к откликам в хранилище документов
type Applications interface {
	FindApplication(ctx context.Context, userID, jobID string) (*store.Application, error)
	UpdateStatus(ctx context.Context, appID, status string) error
}

// Syncer переводит отклик в статус ожидания результатов после интервью
type Syncer struct {
	apps Applications
}

func NewSyncer(apps Applications) *Syncer {
	return &Syncer{apps: apps}
}

// MarkResultsPending ставит статус results_pending. Ошибки не фатальны для интервью,
// вызывающий код их только логирует.
func (s *Syncer) MarkResultsPending(ctx context.Context, userID, jobID string) (*store.Application, error) {
	if userID == "" || jobID == "" {
		return nil, ErrSkipped
	}

	app, err := s.apps.FindApplication(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска отклика: %w", err)
	}

	if err := s.apps.UpdateStatus(ctx, app.ID, store.StatusResultsPending); err != nil {
		return nil, fmt.Errorf("ошибка обновления статуса отклика %s: %w", app.ID, err)
	}

	app.Status = store.StatusResultsPending
	return app, nil
}
