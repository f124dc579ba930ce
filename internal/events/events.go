// Package events publishes coarse-grained study lifecycle notifications
// over NATS. The publisher is optional: a nil *Client is a no-op, so the
// service runs fine without a broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Study lifecycle subjects.
const (
	SubjectStudyUploaded     = "prism.study.uploaded"
	SubjectAnalysisStarted   = "prism.study.analysis.started"
	SubjectAnalysisStage     = "prism.study.analysis.stage"
	SubjectAnalysisCompleted = "prism.study.analysis.completed"
	SubjectAnalysisFailed    = "prism.study.analysis.failed"
)

// StudyEvent is the payload published on every study subject.
type StudyEvent struct {
	StudyID    string    `json:"study_id"`
	JobID      string    `json:"job_id,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Progress   int       `json:"progress,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends a study event on the given subject. Safe on a nil client.
func (c *Client) Publish(subject string, ev StudyEvent) error {
	if c == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.conn.Close()
}
