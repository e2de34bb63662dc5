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

package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/config"
)

const slackURL = "https://hooks.slack.test/services/economy"

func TestSlackPayload(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := slackPayload("Economy Server", errors.New(`save "accounts.json": disk full`), at)
	require.NoError(t, err)

	var msg slackMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Error From Economy Server 🐞", msg.Blocks[0].Text.Text)
	assert.Equal(t, "*Error:*\nsave \"accounts.json\": disk full", msg.Blocks[1].Fields[0].Text)
	assert.Contains(t, msg.Blocks[2].Fields[0].Text, "01 Mar 24")
}

func TestSlackNotification_Delivers(t *testing.T) {
	httpmock.ActivateNonDefault(httpClient)
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		ProjectName:  "Economy Server",
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: slackURL}},
	})

	httpmock.RegisterResponder(http.MethodPost, slackURL, httpmock.NewStringResponder(http.StatusOK, "ok"))

	err := SlackNotification(errors.New("boom"))
	assert.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSlackNotification_RetriesServerErrors(t *testing.T) {
	httpmock.ActivateNonDefault(httpClient)
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: slackURL}},
	})

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, slackURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 2 {
			return httpmock.NewStringResponse(http.StatusBadGateway, "try later"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	assert.NoError(t, SlackNotification(errors.New("boom")))
	assert.Equal(t, 2, calls)
}

func TestSlackNotification_ClientErrorIsPermanent(t *testing.T) {
	httpmock.ActivateNonDefault(httpClient)
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: slackURL}},
	})
	httpmock.RegisterResponder(http.MethodPost, slackURL, httpmock.NewStringResponder(http.StatusForbidden, "no"))

	err := SlackNotification(errors.New("boom"))
	assert.EqualError(t, err, "slack rejected notification with status 403")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSlackNotification_NotConfigured(t *testing.T) {
	httpmock.ActivateNonDefault(httpClient)
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{})
	assert.NoError(t, SlackNotification(errors.New("boom")))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}
