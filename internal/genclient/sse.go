package genclient

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"
)

// EventStream yields parsed generation events until the underlying SSE body
// ends. Next returns io.EOF when the stream closes without a terminal event
// and other errors when the transport breaks mid-read; the caller treats
// both as "fall back to polling".
type EventStream interface {
	Next() (*Event, error)
	Close() error
}

const dataPrefix = "data: "

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.SugaredLogger
}

func newSSEStream(body io.ReadCloser, logger *zap.SugaredLogger) *sseStream {
	scanner := bufio.NewScanner(body)
	// Terminal events carry full artifact URL lists; allow long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: scanner, logger: logger}
}

func (s *sseStream) Next() (*Event, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			// Blank event separators and "event:" type lines carry nothing
			// the engine needs.
			continue
		}

		payload := line[len(dataPrefix):]
		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			if s.logger != nil {
				s.logger.Warnw("skipping unparseable SSE data line", "payload", truncate(payload, 100))
			}
			continue
		}
		return &event, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
