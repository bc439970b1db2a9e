package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ValueHeader carries the attached value to the target. Targets that require
// a value reject the call, which surfaces as an execution failure and leaves
// the transaction pending for a later retry.
const ValueHeader = "X-Quorumgate-Value"

// WebhookInvoker delivers actions as HTTP POSTs to the target URL. A 2xx
// response is success; anything else, including transport errors, is failure.
type WebhookInvoker struct {
	client *http.Client
}

func NewWebhookInvoker(timeout time.Duration) *WebhookInvoker {
	return &WebhookInvoker{
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookInvoker) Invoke(ctx context.Context, action Action) error {
	body := bytes.NewReader(action.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.Target, body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", action.Target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ValueHeader, strconv.FormatInt(action.Value, 10))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", action.Target, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("invoke %s: target returned %d", action.Target, resp.StatusCode)
	}
	return nil
}
