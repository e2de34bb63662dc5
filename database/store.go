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

package database

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when no document has been stored under the name.
var ErrNotFound = errors.New("document not found")

// Store persists named documents. Every economy component keeps its state in one
// document.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// LoadDocument decodes the named document into v. A missing document is not an
// error: found is false and v is left untouched.
func LoadDocument(ctx context.Context, s Store, name string, v interface{}) (found bool, err error) {
	data, err := s.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "load %s", name)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decode %s", name)
	}
	return true, nil
}

// SaveDocument encodes v as indented JSON and stores it under name.
func SaveDocument(ctx context.Context, s Store, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}
	if err := s.Put(ctx, name, data); err != nil {
		return errors.Wrapf(err, "save %s", name)
	}
	return nil
}
