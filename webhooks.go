/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package economy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/internal/notification"
)

// Webhook events published for obligation lifecycle changes.
const (
	EventLoanCreated          = "loan.created"
	EventLoanPayment          = "loan.payment"
	EventLoanCompleted        = "loan.completed"
	EventLoanDefaulted        = "loan.defaulted"
	EventRecurringCreated     = "recurring.created"
	EventRecurringExecuted    = "recurring.executed"
	EventRecurringFailed      = "recurring.failed"
	EventRecurringDeactivated = "recurring.deactivated"
	EventSavingsCreated       = "savings.created"
	EventSavingsInterest      = "savings.interest"
	EventSavingsWithdrawn     = "savings.withdrawn"
	EventSavingsClosed        = "savings.closed"
	EventInterestPaid         = "interest.paid"
	EventTaxCollected         = "tax.collected"
	EventOverdraftAutoRepay   = "overdraft.auto_repay"
	EventOverdraftPrison      = "overdraft.prison"
)

var webhookClient = &http.Client{Timeout: 15 * time.Second}

// NewWebhook is the body POSTed to the configured webhook URL.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// WebhookQueue enqueues webhook deliveries onto an asynq queue served by the
// workers command. A nil queue drops events, which is how webhooks are disabled.
type WebhookQueue struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// RedisConnOpt turns the configured redis DSN into asynq connection options.
func RedisConnOpt(cfg *config.Configuration) (asynq.RedisConnOpt, error) {
	dns := strings.TrimSpace(cfg.Redis.Dns)
	if dns == "" {
		return nil, fmt.Errorf("redis dns is required for the webhook queue")
	}
	if strings.Contains(dns, "://") {
		return asynq.ParseRedisURI(dns)
	}
	return asynq.RedisClientOpt{Addr: dns}, nil
}

// NewWebhookQueue returns nil when no webhook URL is configured.
func NewWebhookQueue(cfg *config.Configuration) (*WebhookQueue, error) {
	if cfg.Notification.Webhook.Url == "" {
		return nil, nil
	}
	opt, err := RedisConnOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &WebhookQueue{
		client:   asynq.NewClient(opt),
		queue:    cfg.Queue.WebhookQueue,
		maxRetry: cfg.Queue.MaxRetryAttempts,
	}, nil
}

func (q *WebhookQueue) Queue() string {
	if q == nil {
		return ""
	}
	return q.queue
}

// Enqueue schedules one delivery.
func (q *WebhookQueue) Enqueue(ctx context.Context, hook NewWebhook) error {
	if q == nil {
		return nil
	}
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.queue, payload, asynq.Queue(q.queue), asynq.MaxRetry(q.maxRetry))
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logrus.Debugf("queued webhook %s as %s", hook.Event, info.ID)
	return nil
}

// Publish enqueues in the background so tick processing never waits on Redis.
func (q *WebhookQueue) Publish(hook NewWebhook) {
	if q == nil {
		return
	}
	go func(hook NewWebhook) {
		if err := q.Enqueue(context.Background(), hook); err != nil {
			notification.NotifyError(fmt.Errorf("enqueue webhook %s: %w", hook.Event, err))
		}
	}(hook)
}

func (q *WebhookQueue) Close() error {
	if q == nil {
		return nil
	}
	return q.client.Close()
}

// processHTTP posts data to the configured webhook URL. Server errors and
// transport failures are retried; 4xx responses are not.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	body, err := json.Marshal(data)
	if err != nil {
		return backoff.Permanent(err)
	}

	send := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range conf.Notification.Webhook.Headers {
			req.Header.Set(key, value)
		}

		resp, err := webhookClient.Do(req)
		if err != nil {
			return err
		}
		defer func(Body io.ReadCloser) {
			if err := Body.Close(); err != nil {
				logrus.Error(err)
			}
		}(resp.Body)

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook %s failed with status %d", data.Event, resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("webhook %s rejected with status %d", data.Event, resp.StatusCode))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	return backoff.Retry(send, backoff.WithContext(policy, ctx))
}

// ProcessWebhook is the asynq handler for queued webhook deliveries.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("invalid webhook payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logrus.Infof("processing webhook %s", payload.Event)
	return processHTTP(ctx, conf, payload)
}
