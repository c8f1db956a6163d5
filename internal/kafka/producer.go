// Package kafka publishes domain events. One writer per topic, JSON
// payloads, at-least-once delivery.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"openfinance/internal/bulk"
	"openfinance/internal/config"
	"openfinance/internal/insurance"
	"openfinance/internal/payments"
	"openfinance/internal/payrequest"
)

// Producer implements the domain event ports over Kafka.
type Producer struct {
	writers map[string]*kafka.Writer
	config  config.KafkaConfig
	logger  *slog.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) *Producer {
	producer := &Producer{
		writers: make(map[string]*kafka.Writer),
		config:  cfg,
		logger:  logger,
	}

	topics := []string{
		cfg.Topics.PaymentSubmitted,
		cfg.Topics.BulkFileSubmitted,
		cfg.Topics.VrpCollected,
		cfg.Topics.VrpRevoked,
		cfg.Topics.QuoteIssued,
	}

	for _, topic := range topics {
		producer.writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		}
	}

	return producer
}

func (p *Producer) publish(ctx context.Context, topic, key string, event interface{}) error {
	writer, exists := p.writers[topic]
	if !exists {
		return fmt.Errorf("no writer configured for topic: %s", topic)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "source-service", Value: []byte("openfinance")},
		},
	}

	if err := writer.WriteMessages(ctx, message); err != nil {
		p.logger.Error("Failed to publish event", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published", "topic", topic, "key", key)
	return nil
}

// Close closes all Kafka writers
func (p *Producer) Close() error {
	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			p.logger.Error("Failed to close writer", "topic", topic, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// PublishPaymentSubmitted publishes a payment-submitted event keyed by
// payment ID.
func (p *Producer) PublishPaymentSubmitted(ctx context.Context, txn *payments.Transaction) error {
	event := map[string]interface{}{
		"event_type": "payment_submitted",
		"payment_id": txn.PaymentID,
		"consent_id": txn.ConsentID,
		"tpp_id":     txn.TPPID,
		"amount":     txn.Amount.StringFixed(2),
		"currency":   txn.Currency,
		"status":     txn.Status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, p.config.Topics.PaymentSubmitted, txn.PaymentID, event)
}

// PublishBulkFileSubmitted publishes a bulk-file-accepted event keyed by
// file ID.
func (p *Producer) PublishBulkFileSubmitted(ctx context.Context, file *bulk.File) error {
	event := map[string]interface{}{
		"event_type":     "bulk_file_submitted",
		"file_id":        file.FileID,
		"consent_id":     file.ConsentID,
		"tpp_id":         file.TPPID,
		"total_count":    file.TotalCount,
		"accepted_count": file.AcceptedCount,
		"rejected_count": file.RejectedCount,
		"total_amount":   file.TotalAmount.StringFixed(2),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, p.config.Topics.BulkFileSubmitted, file.FileID, event)
}

// PublishPaymentCollected publishes a recurring-payment-collected event
// keyed by consent ID so collections for one consent stay ordered.
func (p *Producer) PublishPaymentCollected(ctx context.Context, payment *payrequest.Payment) error {
	event := map[string]interface{}{
		"event_type": "vrp_payment_collected",
		"payment_id": payment.PaymentID,
		"consent_id": payment.ConsentID,
		"tpp_id":     payment.TPPID,
		"amount":     payment.Amount.StringFixed(2),
		"currency":   payment.Currency,
		"period_key": payment.PeriodKey,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, p.config.Topics.VrpCollected, payment.ConsentID, event)
}

// PublishConsentRevoked publishes a consent-revoked event keyed by consent ID.
func (p *Producer) PublishConsentRevoked(ctx context.Context, consent *payrequest.Consent) error {
	event := map[string]interface{}{
		"event_type": "vrp_consent_revoked",
		"consent_id": consent.ConsentID,
		"tpp_id":     consent.TPPID,
		"reason":     consent.RevokeReason,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, p.config.Topics.VrpRevoked, consent.ConsentID, event)
}

// PublishQuoteIssued publishes a quote-issued event keyed by quote ID.
func (p *Producer) PublishQuoteIssued(ctx context.Context, quote *insurance.Quote) error {
	event := map[string]interface{}{
		"event_type":   "quote_issued",
		"quote_id":     quote.QuoteID,
		"consent_id":   quote.ConsentID,
		"tpp_id":       quote.TPPID,
		"product_code": quote.ProductCode,
		"premium":      quote.Premium.StringFixed(2),
		"currency":     quote.Currency,
		"expires_at":   quote.ExpiresAt.UTC().Format(time.RFC3339),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, p.config.Topics.QuoteIssued, quote.QuoteID, event)
}
