package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/wx-verification-etl/internal/config"
	"github.com/couchcryptid/wx-verification-etl/internal/domain"
)

// Record types carried in the record_type header.
const (
	recordTypeObservation = "observation"
	recordTypeDaily       = "daily"
)

// Writer publishes hourly observations and daily verification records to
// their topics. It implements pipeline.Loader.
type Writer struct {
	writer     *kafkago.Writer
	obsTopic   string
	dailyTopic string
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewWriter creates a Kafka producer for the configured observation and
// daily topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{
		writer:     w,
		obsTopic:   cfg.KafkaObsTopic,
		dailyTopic: cfg.KafkaDailyTopic,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}
}

// LoadObservations publishes hourly observations keyed by station and time.
func (w *Writer) LoadObservations(ctx context.Context, obs []domain.CanonicalObservation) error {
	if len(obs) == 0 {
		return nil
	}
	now := w.clock.Now()
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeToMessage(w.obsTopic, observationKey(obs[i]), recordTypeObservation, obs[i].StationID, now, obs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.write(ctx, msgs)
}

// LoadDailies publishes daily records keyed by station and date. Keys are
// stable, so a compacted topic keeps only the latest value per day.
func (w *Writer) LoadDailies(ctx context.Context, dailies []domain.DailyRecord) error {
	if len(dailies) == 0 {
		return nil
	}
	now := w.clock.Now()
	msgs := make([]kafkago.Message, len(dailies))
	for i := range dailies {
		msg, err := serializeToMessage(w.dailyTopic, dailyKey(dailies[i]), recordTypeDaily, dailies[i].StationID, now, dailies[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.write(ctx, msgs)
}

func (w *Writer) write(ctx context.Context, msgs []kafkago.Message) error {
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), msgs[0].Topic, err)
	}
	w.logger.Debug("published messages", "topic", msgs[0].Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func observationKey(o domain.CanonicalObservation) string {
	return o.StationID + "|" + o.DateTime
}

func dailyKey(d domain.DailyRecord) string {
	return d.StationID + "|" + d.Date.String()
}

// serializeToMessage marshals a record into a Kafka message for topic.
func serializeToMessage(topic, key, recordType, stationID string, producedAt time.Time, v any) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s record: %w", recordType, err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte(recordType)},
			{Key: "station_id", Value: []byte(stationID)},
			{Key: "produced_at", Value: []byte(producedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
