package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wangyz12/backend-admin/internal/domain"
	pkgkafka "github.com/wangyz12/backend-admin/pkg/kafka"
	"github.com/wangyz12/backend-admin/pkg/logger"
)

// Kafka topics for user domain events.
var (
	TopicUserRegistered      = pkgkafka.Topic("user", "registered")
	TopicUserUpdated         = pkgkafka.Topic("user", "updated")
	TopicUserPasswordChanged = pkgkafka.Topic("user", "password_changed")
	TopicUserSessionsRevoked = pkgkafka.Topic("user", "sessions_revoked")
)

// SubjectTypeUser marks events whose subject is a user account.
const SubjectTypeUser = "user"

// Source identifier for events originating from this service.
const SourceBackendAdmin = "backend-admin"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Account  string `json:"account"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserUpdatedData is the payload for a user.updated event.
type UserUpdatedData struct {
	ID         string `json:"id"`
	Account    string `json:"account"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// UserPasswordChangedData is the payload for a user.password_changed event.
type UserPasswordChangedData struct {
	UserID       string `json:"user_id"`
	TokenVersion int64  `json:"token_version"`
}

// UserSessionsRevokedData is the payload for a user.sessions_revoked event.
type UserSessionsRevokedData struct {
	UserID       string `json:"user_id"`
	Cause        string `json:"cause"`
	TokenVersion int64  `json:"token_version"`
}

// publisher is the part of pkgkafka.Producer used here.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, UserRegisteredData{
		ID:       user.ID,
		Account:  user.Account,
		Username: user.Username,
		Role:     user.Role,
	})
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserUpdated, user.ID, UserUpdatedData{
		ID:         user.ID,
		Account:    user.Account,
		Username:   user.Username,
		Avatar:     user.Avatar,
		Phone:      user.Phone,
		Email:      user.Email,
		Department: user.Department,
		EmployeeID: user.EmployeeID,
	})
}

// PublishPasswordChanged publishes a user.password_changed event.
func (p *Producer) PublishPasswordChanged(ctx context.Context, userID string, tokenVersion int64) error {
	return p.publish(ctx, TopicUserPasswordChanged, userID, UserPasswordChangedData{
		UserID:       userID,
		TokenVersion: tokenVersion,
	})
}

// PublishSessionsRevoked publishes a user.sessions_revoked event.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, userID, cause string, tokenVersion int64) error {
	return p.publish(ctx, TopicUserSessionsRevoked, userID, UserSessionsRevokedData{
		UserID:       userID,
		Cause:        cause,
		TokenVersion: tokenVersion,
	})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, SubjectTypeUser, SourceBackendAdmin, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)

	return nil
}

// NopProducer discards every event. It is used when Kafka is disabled.
type NopProducer struct{}

func (NopProducer) PublishUserRegistered(context.Context, *domain.User) error { return nil }
func (NopProducer) PublishUserUpdated(context.Context, *domain.User) error    { return nil }
func (NopProducer) PublishPasswordChanged(context.Context, string, int64) error {
	return nil
}
func (NopProducer) PublishSessionsRevoked(context.Context, string, string, int64) error {
	return nil
}
