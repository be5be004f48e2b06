package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lynn75965/biblelessonspark-sub002/internal/dto"
	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
	appErrors "github.com/lynn75965/biblelessonspark-sub002/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationService writes inbox rows for the affected parties and publishes
// the event for downstream delivery workers. Every path is fire-and-forget:
// failures are logged and swallowed so they never roll back a transition.
type NotificationService struct {
	repo      notificationStore
	publisher eventPublisher
	channel   string
	logger    *zap.Logger
}

// NewNotificationService constructs the service. The publisher may be nil
// when the pub/sub channel is disabled; inbox rows are still written.
func NewNotificationService(repo notificationStore, publisher eventPublisher, channel string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, publisher: publisher, channel: channel, logger: logger}
}

// Notify implements the transfer engine's notifier collaborator.
func (s *NotificationService) Notify(ctx context.Context, event string, recipients []string, request *models.TransferRequest) {
	if request == nil || len(recipients) == 0 {
		return
	}
	title, body := describeEvent(event, request)
	link := "/transfers/" + request.ID

	for _, userID := range recipients {
		notification := &models.Notification{
			UserID: userID,
			Title:  title,
			Body:   &body,
			Link:   &link,
		}
		if err := s.repo.Create(ctx, notification); err != nil {
			s.logger.Warn("failed to write inbox notification",
				zap.String("event", event),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	if s.publisher == nil || s.channel == "" {
		return
	}
	payload := dto.NotificationEvent{
		Event:      event,
		Recipients: recipients,
		RequestID:  request.ID,
		Status:     string(request.Status),
		Title:      title,
		Body:       body,
		Link:       link,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode notification event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, s.channel, raw).Err(); err != nil {
		s.logger.Warn("failed to publish notification event",
			zap.String("channel", s.channel),
			zap.Error(err),
		)
	}
}

// ListInbox returns the caller's notifications.
func (s *NotificationService) ListInbox(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, query.UnreadOnly, query.Limit, query.Offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

func describeEvent(event string, request *models.TransferRequest) (string, string) {
	destination := "individual status"
	if request.ToOrganizationID != nil {
		destination = "another organization"
	}

	switch event {
	case models.NotificationTransferCreated:
		return "Transfer request created",
			fmt.Sprintf("A membership transfer to %s was requested and awaits agreement.", destination)
	case models.NotificationTransferResponded:
		if request.Status == models.TransferStatusPendingAdmin {
			return "Transfer request agreed", "Both parties agreed. The request now awaits platform admin review."
		}
		return "Transfer request declined", "The other party declined the transfer request."
	case models.NotificationTransferProcessed:
		if request.Status == models.TransferStatusApproved {
			return "Transfer approved", fmt.Sprintf("The transfer to %s was approved and executed.", destination)
		}
		return "Transfer denied", "The platform admin denied the transfer request."
	case models.NotificationTransferCancelled:
		return "Transfer request cancelled", "The initiator cancelled the transfer request."
	default:
		return "Transfer request updated", fmt.Sprintf("Transfer request is now %s.", request.Status)
	}
}
