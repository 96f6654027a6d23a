package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

// AuditLog writes every event as a structured log line.
type AuditLog struct {
	logger *zap.Logger
}

func NewAuditLog(logger *zap.Logger) *AuditLog {
	return &AuditLog{logger: logger.Named("audit")}
}

func (a *AuditLog) Record(_ context.Context, e domain.Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("entity_id", e.EntityID),
		zap.String("actor", e.Actor),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.From != "" || e.To != "" {
		fields = append(fields, zap.String("from", e.From), zap.String("to", e.To))
	}
	if e.MemberID != "" {
		fields = append(fields, zap.String("member_id", e.MemberID))
	}
	if len(e.MemberIDs) > 0 {
		fields = append(fields, zap.Strings("member_ids", e.MemberIDs))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}

	a.logger.Info(string(e.Type), fields...)
	return nil
}

// LogNotifier stands in for a delivery channel (mail, chat) by logging
// what would be sent.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, userID string, msg domain.Notification) error {
	n.logger.Info(msg.Subject,
		zap.String("user_id", userID),
		zap.String("kind", string(msg.Kind)),
		zap.String("entity_id", msg.EntityID),
		zap.String("message", msg.Message),
	)
	return nil
}
