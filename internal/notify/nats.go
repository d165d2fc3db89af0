package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

// SubjectPrefix is followed by the task id.
const SubjectPrefix = "survey.points.completed."

// StreamName is the JetStream stream that retains completions.
const StreamName = "SURVEY_COMPLETIONS"

// NATS publishes completions as JSON to SubjectPrefix + task id.
type NATS struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// ConnectNATS connects to url. With jetStream set, completions go to a
// file-backed stream so late consumers can replay them.
func ConnectNATS(url string, jetStream bool) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("plat-survey"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	n := &NATS{conn: conn}
	if !jetStream {
		return n, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	n.js = js
	return n, nil
}

// Subject returns the subject for a task. Characters with meaning in NATS
// subjects are replaced with '_'.
func Subject(taskID string) string {
	if taskID == "" {
		taskID = "_"
	}
	return SubjectPrefix + strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, taskID)
}

func (n *NATS) PointCompleted(ctx context.Context, ev proximity.PointCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subject := Subject(ev.TaskID)
	if n.js != nil {
		_, err = n.js.Publish(subject, data, nats.Context(ctx))
		return err
	}
	return n.conn.Publish(subject, data)
}

// Close drains and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
