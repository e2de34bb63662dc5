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

// Package notification reports operator-facing errors: always to the log, and
// to Slack when a webhook is configured.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/config"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func slackPayload(projectName string, err error, at time.Time) ([]byte, error) {
	msg := slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Error From %s 🐞", projectName), Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Error:*\n" + err.Error()}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Time:*\n" + at.Format(time.RFC822)}}},
	}}
	return json.Marshal(msg)
}

// SlackNotification posts err to the configured Slack webhook, retrying
// transient failures a few times.
func SlackNotification(err error) error {
	conf, cErr := config.Fetch()
	if cErr != nil {
		return cErr
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	body, mErr := slackPayload(conf.ProjectName, err, time.Now())
	if mErr != nil {
		return mErr
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(func() error {
		req, rErr := http.NewRequest(http.MethodPost, conf.Notification.Slack.WebhookUrl, bytes.NewReader(body))
		if rErr != nil {
			return backoff.Permanent(rErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, dErr := httpClient.Do(req)
		if dErr != nil {
			return dErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("slack responded with status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("slack rejected notification with status %d", resp.StatusCode))
		}
		return nil
	}, policy)
}

// NotifyError logs systemError and forwards it to Slack without blocking the caller.
func NotifyError(systemError error) {
	if systemError == nil {
		return
	}
	go func(systemError error) {
		logrus.Error(systemError)
		if err := SlackNotification(systemError); err != nil {
			logrus.Warnf("slack notification failed: %v", err)
		}
	}(systemError)
}
