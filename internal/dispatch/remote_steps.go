// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const maxCapturedBody = 2048

// APICallExecutor issues one HTTP request. Any 2xx status is success;
// everything else (including transport errors) is retryable.
type APICallExecutor struct {
	Client *http.Client
}

func (e *APICallExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	method := strings.ToUpper(step.Params.Method)
	url := step.Params.URL

	var body io.Reader
	if step.Params.Body != "" {
		body = strings.NewReader(step.Params.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", domain.TerminalError(fmt.Errorf("api call: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	captured, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("api call %s %s: non-2xx response: %d", method, url, resp.StatusCode)
	}

	out := fmt.Sprintf("%s %s -> %d", method, url, resp.StatusCode)
	if text := strings.TrimSpace(string(captured)); text != "" {
		out += "\n" + text
	}
	return out, nil
}

// Database is the slice of pgxpool.Pool the database executor needs.
type Database interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DatabaseExecutor runs ping/query/exec operations against the
// configured database. It is a step target, not a state store.
type DatabaseExecutor struct {
	DB Database
}

func (e *DatabaseExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	if e.DB == nil {
		return "", domain.TerminalError(fmt.Errorf("no database configured"))
	}

	switch op := step.Params.Operation; op {
	case "ping":
		if err := e.DB.Ping(ctx); err != nil {
			return "", fmt.Errorf("database ping: %w", err)
		}
		return "database reachable", nil

	case "exec":
		tag, err := e.DB.Exec(ctx, step.Params.Statement)
		if err != nil {
			return "", fmt.Errorf("database exec: %w", err)
		}
		return fmt.Sprintf("database exec completed: %s", tag.String()), nil

	case "query":
		rows, err := e.DB.Query(ctx, step.Params.Statement)
		if err != nil {
			return "", fmt.Errorf("database query: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			count++
		}
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("database query: %w", err)
		}
		return fmt.Sprintf("database query returned %d rows", count), nil

	default:
		return "", domain.TerminalError(fmt.Errorf("unknown database operation %q", op))
	}
}
