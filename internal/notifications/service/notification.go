package service

import (
	"context"
	"errors"
	"sync"
	"time"

	notificationserrors "rideshare/internal/notifications/errors"
	"rideshare/internal/notifications/repository"
	"rideshare/pkg/config"
	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/model"
	"rideshare/pkg/session"
)

type NotificationService interface {
	List(ctx context.Context, sess session.Session, unreadOnly bool, limit int, offset int64) ([]*model.UserNotification, int64, error)
	MarkRead(ctx context.Context, sess session.Session, id string) error
	MarkAllRead(ctx context.Context, sess session.Session) (int64, error)
}

type notificationService struct {
	repo repository.NotificationRepository
	cfg  *config.Config
	now  func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, cfg *config.Config) NotificationService {
	return &notificationService{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *notificationService) List(ctx context.Context, sess session.Session, unreadOnly bool, limit int, offset int64) ([]*model.UserNotification, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var items []*model.UserNotification
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountByUser(ctx, sess.UserID, unreadOnly)
		if err != nil {
			s.cfg.Log.Error("Failed to count notifications", "user_id", sess.UserID, "error", err)
			errCount = apperrors.Internal("Failed to count notifications", err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		items, err = s.repo.FindByUser(ctx, sess.UserID, unreadOnly, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to list notifications", "user_id", sess.UserID, "error", err)
			errFind = apperrors.Internal("Failed to retrieve notifications", err)
		}
	}()
	wg.Wait()

	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	if items == nil {
		items = []*model.UserNotification{}
	}
	return items, count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, sess session.Session, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Notification ID cannot be empty")
	}
	if err := s.repo.MarkRead(ctx, id, sess.UserID, s.now()); err != nil {
		switch {
		case errors.Is(err, notificationserrors.ErrNotFound):
			return apperrors.NotFoundWithID("Notification", id)
		case errors.Is(err, notificationserrors.ErrInvalidID):
			return apperrors.InvalidInput("Invalid notification ID format")
		}
		s.cfg.Log.Error("Failed to mark notification read", "id", id, "error", err)
		return apperrors.Internal("Failed to update notification", err)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, sess session.Session) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, sess.UserID, s.now())
	if err != nil {
		s.cfg.Log.Error("Failed to mark notifications read", "user_id", sess.UserID, "error", err)
		return 0, apperrors.Internal("Failed to update notifications", err)
	}
	s.cfg.Log.Info("Notifications marked read", "user_id", sess.UserID, "count", n)
	return n, nil
}
