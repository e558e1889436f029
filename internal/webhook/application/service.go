package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Service struct {
	log   *slog.Logger
	repo  Repository
	queue queue.Queue
}

func NewService(log *slog.Logger, repo Repository, q queue.Queue) *Service {
	return &Service{log: log, repo: repo, queue: q}
}

type Page struct {
	Logs   []domain.Log
	Total  int
	Limit  int
	Offset int
}

func (s *Service) List(ctx context.Context, merchantID string, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	logs, total, err := s.repo.List(ctx, merchantID, limit, offset)
	if err != nil {
		return Page{}, err
	}
	return Page{Logs: logs, Total: total, Limit: limit, Offset: offset}, nil
}

// Retry re-arms a log and schedules an immediate attempt. It is the only way
// to resume delivery of a failed log.
func (s *Service) Retry(ctx context.Context, merchantID, id string) (domain.Log, error) {
	l, err := s.repo.GetForMerchant(ctx, merchantID, id)
	if err != nil {
		return domain.Log{}, err
	}

	rearmed := l.Rearm()
	ok, err := s.repo.Save(ctx, rearmed, l.Status, l.Attempts)
	if err != nil {
		return domain.Log{}, err
	}
	if !ok {
		return domain.Log{}, apperr.Conflict(apperr.CodeBadRequest, "Webhook delivery in progress, try again")
	}
	if err := enqueue(ctx, s.queue, rearmed.ID, 0); err != nil {
		return domain.Log{}, err
	}
	s.log.Info("webhook retry scheduled", "log_id", id, "previous_status", string(l.Status))
	return rearmed, nil
}
