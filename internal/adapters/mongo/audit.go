package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/showtime-booking/internal/booking"
	"github.com/robertarktes/showtime-booking/internal/observability"
)

// AuditLogger appends booking events to an append-only collection.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("booking_audit"),
		logger: logger,
	}
}

type AuditLog struct {
	ID         string    `bson:"_id"`
	Action     string    `bson:"action"`
	BookingID  string    `bson:"booking_id"`
	ShowtimeID string    `bson:"showtime_id"`
	Customer   string    `bson:"customer_ref"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

// LogBookingEvent stores one event keyed by its message ID, so redelivered
// messages are recorded once.
func (a *AuditLogger) LogBookingEvent(ctx context.Context, messageID, action string, body []byte) error {
	var p booking.EventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return errors.Wrapf(err, "decode %s event %s", action, messageID)
	}
	var data bson.M
	if err := json.Unmarshal(body, &data); err != nil {
		return err
	}
	entry := AuditLog{
		ID:         messageID,
		Action:     action,
		BookingID:  p.BookingID.String(),
		ShowtimeID: p.ShowtimeID.String(),
		Customer:   p.CustomerRef,
		Timestamp:  p.OccurredAt,
		Data:       data,
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

// History lists a booking's events oldest first.
func (a *AuditLogger) History(ctx context.Context, bookingID string) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"booking_id": bookingID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
