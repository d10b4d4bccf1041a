package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feedsync/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// ArticleMessage is the wire payload emitted for downstream consumers.
type ArticleMessage struct {
	Action    string         `json:"action"` // "create" or "update"
	Article   ArticlePayload `json:"article"`
	Timestamp time.Time      `json:"timestamp"`
}

type ArticlePayload struct {
	ID           string     `json:"id"`
	SourceID     int64      `json:"source_id"`
	ExternalID   string     `json:"external_id"`
	Title        string     `json:"title"`
	Author       *string    `json:"author,omitempty"`
	Summary      *string    `json:"summary,omitempty"`
	URL          *string    `json:"url,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	MediaKind    string     `json:"media_kind"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
}

func (r *RabbitMQ) Publish(ctx context.Context, article *domain.Article, isNew bool) error {
	action := "update"
	if isNew {
		action = "create"
	}

	msg := ArticleMessage{
		Action: action,
		Article: ArticlePayload{
			ID:           article.ID,
			SourceID:     article.SourceID,
			ExternalID:   article.ExternalID,
			Title:        article.Title,
			Author:       article.Author,
			Summary:      article.Summary,
			URL:          article.URL,
			PublishedAt:  article.PublishedAt,
			MediaKind:    string(article.MediaKind),
			ThumbnailURL: article.ThumbnailURL,
		},
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published article",
		"article_id", article.ID,
		"action", action,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
