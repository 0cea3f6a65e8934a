package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// Messenger sends one message. Satisfied by *whatsapp.Client.
type Messenger interface {
	SendMessage(ctx context.Context, req whatsapp.SendRequest) error
}

// Logger is the interface for optional logging support.
type Logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// Notification is one message addressed to one or more chat targets.
type Notification struct {
	// Targets are the destination chat IDs. At least one is required.
	Targets []string

	// Message is the text body. May be empty when media is attached.
	Message string

	// MediaURL is an optional media attachment to fetch and send.
	MediaURL string

	// MediaFilename overrides the attachment filename.
	MediaFilename string
}

// Service fans notifications out to their targets.
type Service struct {
	messenger Messenger
	logger    Logger
}

// NewService creates a notification service over a session's client.
func NewService(messenger Messenger, logger Logger) *Service {
	return &Service{messenger: messenger, logger: logger}
}

// Send delivers the notification to every target. A failed target is
// logged and recorded but does not stop delivery to the rest; the
// returned error joins all per-target failures.
func (s *Service) Send(ctx context.Context, n Notification) error {
	if len(n.Targets) == 0 {
		return ErrNoTargets
	}

	var errs []error
	for _, target := range n.Targets {
		req := whatsapp.SendRequest{
			To:            target,
			Message:       n.Message,
			MediaURL:      n.MediaURL,
			MediaFilename: n.MediaFilename,
		}
		if err := s.messenger.SendMessage(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("target %s: %w", target, err))
			if s.logger != nil {
				s.logger.Warn("notification delivery failed",
					"target", target,
					"error", err)
			}
			continue
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if s.logger != nil {
		s.logger.Info("notification delivered", "targets", len(n.Targets))
	}
	return nil
}
