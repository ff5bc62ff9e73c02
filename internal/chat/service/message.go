package service

import (
	"context"
	"errors"
	"slices"
	"time"

	chaterrors "rideshare/internal/chat/errors"
	"rideshare/internal/chat/repository"
	"rideshare/internal/chat/validator"
	"rideshare/pkg/config"
	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/model"
	"rideshare/pkg/sanitizer"
	"rideshare/pkg/session"
)

type MessageService interface {
	Send(ctx context.Context, sess session.Session, req *model.SendMessageRequest) (*model.ChatMessage, error)
	Conversation(ctx context.Context, sess session.Session, otherUserID string, limit int, offset int64) ([]*model.ChatMessage, error)
	MarkConversationRead(ctx context.Context, sess session.Session, otherUserID string) (int64, error)
	UnreadCount(ctx context.Context, sess session.Session) (int64, error)
}

type Notifier interface {
	MessageCreated(ctx context.Context, msg *model.ChatMessage)
}

type messageService struct {
	repo      repository.MessageRepository
	validator *validator.MessageValidator
	notifier  Notifier
	cfg       *config.Config
	now       func() time.Time
}

func NewMessageService(
	repo repository.MessageRepository,
	validator *validator.MessageValidator,
	notifier Notifier,
	cfg *config.Config,
) MessageService {
	return &messageService{
		repo:      repo,
		validator: validator,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send stores a user message. System messages are only written by the
// notification dispatcher.
func (s *messageService) Send(ctx context.Context, sess session.Session, req *model.SendMessageRequest) (*model.ChatMessage, error) {
	msg := &model.ChatMessage{
		SenderID:    sess.UserID,
		ReceiverID:  req.ReceiverID,
		Content:     sanitizer.SanitizeMultiline(req.Content),
		MessageType: model.MessageTypeUser,
		CreatedAt:   s.now(),
	}

	if err := s.validator.Validate(msg); err != nil {
		s.cfg.Log.Warn("Message validation failed",
			"sender_id", msg.SenderID,
			"receiver_id", msg.ReceiverID,
			"error", err,
		)
		return nil, apperrors.Validation("Message validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		s.cfg.Log.Error("Failed to create message",
			"sender_id", msg.SenderID,
			"receiver_id", msg.ReceiverID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to send message", err)
	}

	s.cfg.Log.Info("Message sent",
		"id", msg.ID,
		"sender_id", msg.SenderID,
		"receiver_id", msg.ReceiverID,
	)
	s.notifier.MessageCreated(ctx, msg)
	return msg, nil
}

// Conversation returns one page of the thread ordered oldest first. Pages
// are cut from the newest end so offset 0 is always the latest messages.
func (s *messageService) Conversation(ctx context.Context, sess session.Session, otherUserID string, limit int, offset int64) ([]*model.ChatMessage, error) {
	if err := s.checkParticipant(sess, otherUserID); err != nil {
		return nil, err
	}

	messages, err := s.repo.FindConversation(ctx, sess.UserID, otherUserID,
		config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset))
	if err != nil {
		s.cfg.Log.Error("Failed to load conversation",
			"user_id", sess.UserID,
			"other_user_id", otherUserID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve conversation", err)
	}

	slices.Reverse(messages)
	if messages == nil {
		messages = []*model.ChatMessage{}
	}
	return messages, nil
}

func (s *messageService) MarkConversationRead(ctx context.Context, sess session.Session, otherUserID string) (int64, error) {
	if err := s.checkParticipant(sess, otherUserID); err != nil {
		return 0, err
	}

	n, err := s.repo.MarkConversationRead(ctx, sess.UserID, otherUserID, s.now())
	if err != nil {
		s.cfg.Log.Error("Failed to mark conversation read",
			"user_id", sess.UserID,
			"other_user_id", otherUserID,
			"error", err,
		)
		return 0, apperrors.Internal("Failed to update messages", err)
	}
	return n, nil
}

func (s *messageService) UnreadCount(ctx context.Context, sess session.Session) (int64, error) {
	n, err := s.repo.CountUnread(ctx, sess.UserID)
	if err != nil {
		s.cfg.Log.Error("Failed to count unread messages", "user_id", sess.UserID, "error", err)
		return 0, apperrors.Internal("Failed to count unread messages", err)
	}
	return n, nil
}

func (s *messageService) checkParticipant(sess session.Session, otherUserID string) error {
	if err := s.validator.ValidateUserID(otherUserID); err != nil {
		if errors.Is(err, chaterrors.ErrInvalidParticipant) {
			return apperrors.InvalidInput("Invalid user ID format")
		}
		return err
	}
	if sess.Is(otherUserID) {
		return apperrors.InvalidInput("A conversation needs another participant")
	}
	return nil
}
