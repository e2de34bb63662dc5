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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/internal/notification"
	"github.com/blnkfinance/economy/model"
)

// document is the persistence bookkeeping every component embeds: the store
// and name it saves to, a dirty flag and the outcome of the last I/O.
type document struct {
	store     database.Store
	name      string
	component string
	dirty     atomic.Bool

	mu         sync.RWMutex
	lastErr    error
	lastErrAt  *time.Time
	lastSaveAt *time.Time
}

func newDocument(store database.Store, component, name string) *document {
	return &document{store: store, component: component, name: name}
}

func (d *document) markDirty() {
	d.dirty.Store(true)
}

func (d *document) isDirty() bool {
	return d.dirty.Load()
}

// load decodes the stored document into v. A missing document leaves v untouched.
func (d *document) load(ctx context.Context, v interface{}) error {
	if d.store == nil {
		return nil
	}
	_, err := database.LoadDocument(ctx, d.store, d.name, v)
	d.record(err, false)
	return err
}

// save writes the value returned by snapshot and clears the dirty flag. The
// flag is cleared before the snapshot is taken so a mutation racing with the
// write marks the document dirty again.
func (d *document) save(ctx context.Context, snapshot func() interface{}) error {
	wasDirty := d.dirty.Swap(false)
	if d.store == nil {
		return nil
	}
	started := time.Now()
	err := database.SaveDocument(ctx, d.store, d.name, snapshot())
	if err != nil && wasDirty {
		d.dirty.Store(true)
	}
	observePersist(d.component, started, err)
	d.record(err, true)
	return err
}

func (d *document) record(err error, saving bool) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.lastErr = errors.Wrapf(err, "%s persistence", d.component)
		d.lastErrAt = &now
		notification.NotifyError(d.lastErr)
		return
	}
	d.lastErr = nil
	if saving {
		d.lastSaveAt = &now
	}
}

func (d *document) healthy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr == nil
}

func (d *document) err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

func (d *document) info(records int) model.HealthInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info := model.HealthInfo{
		Component:   d.component,
		Healthy:     d.lastErr == nil,
		Dirty:       d.dirty.Load(),
		Records:     records,
		LastErrorAt: d.lastErrAt,
		LastSaveAt:  d.lastSaveAt,
	}
	if d.lastErr != nil {
		info.LastError = d.lastErr.Error()
	}
	return info
}
