package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPIngester triggers a remote metadata ingestion service and waits for
// its acknowledgment. The remote side owns the CSV/Excel parsing.
type HTTPIngester struct {
	url        string
	httpClient *http.Client
}

// NewHTTPIngester builds a collaborator client. An empty URL disables it.
func NewHTTPIngester(url string) *HTTPIngester {
	if url == "" {
		return nil
	}
	return &HTTPIngester{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Ingest asks the collaborator to load the batch's metadata rows.
func (h *HTTPIngester) Ingest(ctx context.Context, batchID uint, date time.Time) error {
	body, err := json.Marshal(map[string]interface{}{
		"batch_id": batchID,
		"date":     date.Format("2006-01-02"),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("metadata ingestion trigger failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata ingestion returned %d", resp.StatusCode)
	}
	return nil
}
