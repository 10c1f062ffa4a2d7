// SPDX-License-Identifier: Apache-2.0

package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	webhookRetryAttempts = 3
	webhookRetryBase     = 300 * time.Millisecond
	webhookHeaderSig     = "X-Signature"
)

// WebhookNotifier posts terminal events to a caller-supplied callback
// URL, signing the payload with HMAC-SHA256 when a secret is set.
// Delivery retries a few times with backoff and then gives up; a lost
// callback is logged, never fatal.
type WebhookNotifier struct {
	client *http.Client
	secret string
	logger *slog.Logger
}

func NewWebhookNotifier(client *http.Client, secret string, logger *slog.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		client: client,
		secret: secret,
		logger: logger,
	}
}

func (n *WebhookNotifier) Deliver(ctx context.Context, url string, payload any) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("webhook payload marshal failed", "url", url, "error", err)
		return
	}

	signature := signPayload(n.secret, body)

	var lastErr error
	for attempt := 1; attempt <= webhookRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			n.logger.Error("webhook request build failed", "url", url, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(webhookHeaderSig, signature)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Warn("webhook failure", "url", url, "attempt", attempt, "error", err)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				n.logger.Info("webhook delivered",
					"url", url,
					"attempt", attempt,
					"response_status", resp.StatusCode,
				)
				return
			}

			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
			n.logger.Warn("webhook failure",
				"url", url,
				"attempt", attempt,
				"response_status", resp.StatusCode,
			)
		}

		if attempt < webhookRetryAttempts {
			wait := webhookRetryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				n.logger.Warn("webhook cancelled before retry", "url", url, "error", ctx.Err())
				return
			case <-timer.C:
			}
		}
	}

	if lastErr != nil {
		n.logger.Error("webhook retries exhausted", "url", url, "error", lastErr)
	}
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
