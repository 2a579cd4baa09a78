// Package blobstore is the adapter the job store and edit operations use to
// persist and exchange anything that must outlive a single process: job
// snapshots, source/output videos, and cached masks. It speaks the same
// Supabase-storage-style REST object protocol as the teacher's storage
// client, extended with JSON convenience methods, existence/listing, and a
// signing fallback chain for environments with no directly usable private
// key.
package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bobarin/vidguard/internal/errs"
)

const (
	uploadTimeout   = 180 * time.Second
	downloadTimeout = 120 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	// inlineDataURILimit bounds the Sign fallback that returns a data: URI
	// instead of a signed link — past this size a caller needs a real
	// signed URL or the payload belongs in the response body directly.
	inlineDataURILimit = 5 * 1024 * 1024
)

// Store is the Blob Store Adapter. One Store is shared by every component
// that reads or writes durable state; it holds no per-job data itself.
type Store struct {
	url        string
	serviceKey string
	bucket     string
	client     *http.Client

	// impersonateIdentity and signBlobURL back the impersonated-signing
	// fallback used when serviceKey cannot sign directly (e.g. an ambient
	// workload identity with no exportable private key).
	impersonateIdentity string
	signBlobURL         string
}

func New(url, serviceKey, bucket, impersonateIdentity, signBlobURL string) *Store {
	return &Store{
		url:                  url,
		serviceKey:           serviceKey,
		bucket:               bucket,
		impersonateIdentity:  impersonateIdentity,
		signBlobURL:          signBlobURL,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Store) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, key)
}

// Put uploads data at key, retrying transient failures with jittered
// exponential backoff.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	url := s.objectURL(key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("put cancelled: %w", ctx.Err())
			case <-time.After(retryDelay(attempt)):
			}
		}

		putCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
		req, err := http.NewRequestWithContext(putCtx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("build put request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return errs.Backend(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return nil
		}
		lastErr = fmt.Errorf("put %s: status %d: %s", key, resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return errs.Backend(lastErr)
	}
	return errs.Backend(fmt.Errorf("put %s failed after %d attempts: %w", key, maxRetries+1, lastErr))
}

// PutFile is a convenience wrapper reading localPath and calling Put.
func (s *Store) PutFile(ctx context.Context, key, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	return s.Put(ctx, key, data, contentType)
}

// Get downloads the object at key, retrying transient failures.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	url := s.objectURL(key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("get cancelled: %w", ctx.Err())
			case <-time.After(retryDelay(attempt)):
			}
		}

		getCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
		req, err := http.NewRequestWithContext(getCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("build get request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return nil, errs.Backend(err)
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			cancel()
			return nil, errs.NotFound("blob %s not found", key)
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			if err != nil {
				lastErr = err
				continue
			}
			return data, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		lastErr = fmt.Errorf("get %s: status %d: %s", key, resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return nil, errs.Backend(lastErr)
	}
	return nil, errs.Backend(fmt.Errorf("get %s failed after %d attempts: %w", key, maxRetries+1, lastErr))
}

// PutJSON marshals v and stores it at key with an application/json content type.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, data, "application/json")
}

// GetJSON downloads key and unmarshals it into v.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present, distinguishing a real not-found
// from a transport error.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	url := s.objectURL(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("build head request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, errs.Backend(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errs.Backend(fmt.Errorf("head %s: status %d", key, resp.StatusCode))
	}
}

// List returns the keys stored directly under prefix, matching the
// list-objects shape Supabase-compatible storage backends expose.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/list/%s", s.url, s.bucket)
	body, _ := json.Marshal(map[string]any{"prefix": prefix})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Backend(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, errs.Backend(fmt.Errorf("list %s: status %d: %s", prefix, resp.StatusCode, truncate(string(b), 200)))
	}

	var entries []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, path.Join(prefix, e.Name))
	}
	return names, nil
}

// Sign returns a time-limited URL for key. It tries a direct signed-URL
// request first; if that's rejected (no signing key configured for this
// service account) it falls back to an impersonated sign-blob RPC; if
// neither is available and the object is small enough, it falls back to an
// inline data: URI so the caller always gets something usable. Past
// inlineDataURILimit with no signing path configured, it returns an
// UnsignableError.
func (s *Store) Sign(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if url, err := s.signDirect(ctx, key, expiresIn); err == nil {
		return url, nil
	}

	if s.impersonateIdentity != "" && s.signBlobURL != "" {
		if url, err := s.signImpersonated(ctx, key, expiresIn); err == nil {
			return url, nil
		}
	}

	data, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if len(data) > inlineDataURILimit {
		return "", errs.Unsignable("blob %s is %d bytes, too large for inline fallback and no signing path is configured", key, len(data))
	}
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (s *Store) signDirect(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.bucket, key)
	body := fmt.Sprintf(`{"expiresIn": %d}`, int(expiresIn.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sign %s: status %d: %s", key, resp.StatusCode, truncate(string(b), 200))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode sign response: %w", err)
	}
	return s.url + result.SignedURL, nil
}

// signImpersonated asks an ambient sign-blob RPC to sign on behalf of
// impersonateIdentity — the path used when the storage service account has
// no directly usable private key (common for workload-identity deployments).
func (s *Store) signImpersonated(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	reqBody, _ := json.Marshal(map[string]any{
		"identity":   s.impersonateIdentity,
		"bucket":     s.bucket,
		"object":     key,
		"expiresIn":  int(expiresIn.Seconds()),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.signBlobURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build impersonated sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("impersonated sign %s: status %d: %s", key, resp.StatusCode, truncate(string(b), 200))
	}

	var result struct {
		SignedURL string `json:"signedUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode impersonated sign response: %w", err)
	}
	return result.SignedURL, nil
}

func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
