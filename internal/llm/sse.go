package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/domain"
)

// ErrStreamTruncated is reported when a provider stream ends before its
// terminal event, so the text received so far may be incomplete.
var ErrStreamTruncated = errors.New("stream ended before completion marker")

// readSSE calls onData with the payload of every "data:" line until onData
// reports done or returns an error. A body that ends first yields
// ErrStreamTruncated.
func readSSE(r io.Reader, onData func(data []byte) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) == 0 {
			continue
		}
		done, err := onData(data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamTruncated
}

// send delivers c unless ctx is cancelled first.
func send(ctx context.Context, out chan<- domain.StreamChunk, c domain.StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// StripFences removes a surrounding ```json ... ``` block if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
