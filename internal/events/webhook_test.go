// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/google/uuid"
)

func TestDeliverRetriesAndSigns(t *testing.T) {
	var attempts int32
	secret := "super-secret"
	execID := uuid.New()

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		current := atomic.AddInt32(&attempts, 1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}

		gotSig := r.Header.Get(webhookHeaderSig)
		wantSig := signPayload(secret, body)
		if gotSig != wantSig {
			t.Fatalf("expected signature %q got %q", wantSig, gotSig)
		}
		if !strings.Contains(string(body), execID.String()) {
			t.Fatalf("expected payload to carry execution id, got %s", body)
		}

		if current < 3 {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader("")),
				Header:     make(http.Header),
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
		}, nil
	})}

	n := NewWebhookNotifier(client, secret, discardLogger())
	n.Deliver(context.Background(), "https://example.com/callback", domain.Event{
		Type:        domain.EventExecutionCompleted,
		ExecutionID: execID,
		DocumentID:  "plan-1",
	})

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts got %d", got)
	}
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int32

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
		}, nil
	})}

	n := NewWebhookNotifier(client, "", discardLogger())
	n.Deliver(context.Background(), "https://example.com/callback", domain.Event{
		Type: domain.EventExecutionFailed,
	})

	if got := atomic.LoadInt32(&attempts); got != int32(webhookRetryAttempts) {
		t.Fatalf("expected %d attempts got %d", webhookRetryAttempts, got)
	}
}

func TestDeliverSkipsEmptyURL(t *testing.T) {
	var attempts int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, nil
	})}

	n := NewWebhookNotifier(client, "", discardLogger())
	n.Deliver(context.Background(), "   ", domain.Event{})

	if atomic.LoadInt32(&attempts) != 0 {
		t.Fatal("expected no request for empty url")
	}
}

func TestSignPayloadEmptySecret(t *testing.T) {
	if sig := signPayload("", []byte("body")); sig != "" {
		t.Fatalf("expected empty signature got %q", sig)
	}
	if sig := signPayload("secret", []byte("body")); sig == "" {
		t.Fatal("expected signature for non-empty secret")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
