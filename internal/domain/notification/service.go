package notification

import (
	"context"
	"fmt"
	"log/slog"

	"clawfinance/internal/shared/messages"
)

// Event kinds carried in the data payload.
const (
	EventMFARequired = "connection_mfa_required"
	EventSyncFailed  = "connection_sync_failed"
)

// UserTopic is the topic a user's devices subscribe to.
func UserTopic(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// Service tells users when a connection needs their attention. Every send is
// best-effort.
type Service struct {
	messenger Messenger
	texts     *messages.Messages
	logger    *slog.Logger
}

// NewService creates a new notification service. A nil messenger turns every
// send into a no-op.
func NewService(messenger Messenger, texts *messages.Messages, logger *slog.Logger) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{messenger: messenger, texts: texts, logger: logger}
}

func (s *Service) ConnectionMFARequired(ctx context.Context, userID int64, connectionID, institution string) {
	if s == nil {
		return
	}
	s.send(ctx, userID, s.texts.MFARequired.Render(institution), map[string]string{
		"event":         EventMFARequired,
		"connection_id": connectionID,
	})
}

func (s *Service) ConnectionSyncFailed(ctx context.Context, userID int64, connectionID, institution string) {
	if s == nil {
		return
	}
	s.send(ctx, userID, s.texts.SyncFailed.Render(institution), map[string]string{
		"event":         EventSyncFailed,
		"connection_id": connectionID,
	})
}

func (s *Service) send(ctx context.Context, userID int64, text messages.MessageText, data map[string]string) {
	if s.messenger == nil {
		return
	}
	if err := s.messenger.SendToTopic(ctx, UserTopic(userID), text.Title, text.Body, data); err != nil {
		s.logger.Warn("failed to send notification",
			"user_id", userID, "event", data["event"], "error", err)
	}
}
