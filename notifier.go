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
	"sync"
)

// Notifier delivers a human readable message to a player. Implementations
// must treat an offline player as a no-op.
type Notifier interface {
	Notify(playerID, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(playerID, message string)

func (f NotifierFunc) Notify(playerID, message string) {
	f(playerID, message)
}

// PlayerDirectory is a Notifier backed by the set of currently connected players.
type PlayerDirectory struct {
	mu      sync.RWMutex
	players map[string]func(string)
}

func NewPlayerDirectory() *PlayerDirectory {
	return &PlayerDirectory{players: make(map[string]func(string))}
}

// Connect registers deliver as the message sink for playerID, replacing any previous one.
func (d *PlayerDirectory) Connect(playerID string, deliver func(string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.players[playerID] = deliver
}

func (d *PlayerDirectory) Disconnect(playerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.players, playerID)
}

func (d *PlayerDirectory) IsConnected(playerID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.players[playerID]
	return ok
}

func (d *PlayerDirectory) Online() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.players)
}

func (d *PlayerDirectory) Notify(playerID, message string) {
	d.mu.RLock()
	deliver, ok := d.players[playerID]
	d.mu.RUnlock()
	if ok && deliver != nil {
		deliver(message)
	}
}

type playerMessage struct {
	playerID string
	text     string
}

// outbox buffers player messages and webhook events produced while a
// processor holds its lock. flush runs after the lock is released.
type outbox struct {
	messages []playerMessage
	events   []NewWebhook
}

func (o *outbox) tell(playerID, text string) {
	o.messages = append(o.messages, playerMessage{playerID: playerID, text: text})
}

func (o *outbox) publish(event string, payload interface{}) {
	o.events = append(o.events, NewWebhook{Event: event, Payload: payload})
}

func (o *outbox) flush(notifier Notifier, hooks *WebhookQueue) {
	if notifier != nil {
		for _, m := range o.messages {
			notifier.Notify(m.playerID, m.text)
		}
	}
	for _, e := range o.events {
		hooks.Publish(e)
	}
	o.messages = nil
	o.events = nil
}
