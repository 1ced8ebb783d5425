package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the first token of every published subject
const DefaultSubjectPrefix = "lemuria"

// NATSSink publishes events as JSON to <prefix>.<serial>.<type> and to
// <prefix>.all
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// DialNATS connects to url and returns a sink that closes the connection
// when the bus shuts down
func DialNATS(url string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("lemuria"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	s := NewNATSSink(conn, DefaultSubjectPrefix)
	s.owned = true
	return s, nil
}

// NewNATSSink publishes on an existing connection
func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Name returns "nats"
func (s *NATSSink) Name() string { return "nats" }

// Handle publishes e on its per-device subject and on the catch-all subject
func (s *NATSSink) Handle(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.conn.Publish(Subject(s.prefix, e), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := s.conn.Publish(s.prefix+".all", data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection if the sink
// opened it
func (s *NATSSink) Close() error {
	if !s.owned {
		return nil
	}
	err := s.conn.Flush()
	s.conn.Close()
	return err
}

// Subject returns the NATS subject an event is published on
func Subject(prefix string, e Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(e.Serial), e.Type)
}

// subjectToken replaces characters NATS treats as token separators or
// wildcards
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	out := []byte(s)
	for i, c := range out {
		switch c {
		case '.', '*', '>', ' ', '\t':
			out[i] = '_'
		}
	}
	return string(out)
}
