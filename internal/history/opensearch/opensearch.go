// Package opensearch indexes launch lifecycle events into OpenSearch (or
// Elasticsearch; the document API is the same) for fleet-wide collision
// analytics.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/graydot/potter/internal/history"
)

// Sink writes one document per event. Each document gets a deterministic id
// derived from the launch, the event type and its timestamp, so a send
// retried after a transient failure overwrites its own document instead of
// duplicating it.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	u := s.baseURL + "/" + s.index + "/_doc/" + docID(e)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}

// docID is unique per event but stable across retries of the same event. A
// launch emits at most one event of a given type per instant, so launch id,
// type and nanosecond timestamp identify it.
func docID(e history.Event) string {
	return fmt.Sprintf("%s-%s-%d", e.Record.LaunchID, e.Type, e.OccurredAt.UnixNano())
}
