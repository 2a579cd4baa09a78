package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/vidguard/internal/errs"
)

var sourceDownloadClient = &http.Client{Timeout: 120 * time.Second}

// downloadURL fetches sourceURL's body in full, used to lazily materialize
// a job's source video the first time an operation needs local bytes.
func downloadURL(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := sourceDownloadClient.Do(req)
	if err != nil {
		return nil, errs.Backend(fmt.Errorf("download request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Backend(fmt.Errorf("download returned status %d", resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}
