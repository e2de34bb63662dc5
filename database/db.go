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
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/config"
	redis_db "github.com/blnkfinance/economy/internal/redis-db"
)

// Backend identifies which Store implementation a DSN selects.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendSQLite   Backend = "sqlite"
)

// ParseDSN maps a data source string onto a backend and the driver specific
// connection string. Anything without a known scheme is a directory path.
func ParseDSN(dsn string) (Backend, string) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return BackendRedis, dsn
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPostgres, dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return BackendMySQL, strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(dsn, "sqlite://"):
		return BackendSQLite, strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "file://"):
		return BackendFile, strings.TrimPrefix(dsn, "file://")
	default:
		return BackendFile, dsn
	}
}

// NewDataSource builds the Store configured by data_source.dns.
func NewDataSource(configuration *config.Configuration) (Store, error) {
	backend, conn := ParseDSN(configuration.DataSource.Dns)
	logrus.Infof("using %s document store", backend)

	switch backend {
	case BackendRedis:
		client, err := redis_db.NewRedisClient(redis_db.SplitAddresses(conn), configuration.Redis.SkipTLSVerify)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis store")
		}
		return NewRedisStore(client.Client()), nil
	case BackendPostgres, BackendMySQL, BackendSQLite:
		dialect := map[Backend]string{
			BackendPostgres: DialectPostgres,
			BackendMySQL:    DialectMySQL,
			BackendSQLite:   DialectSQLite,
		}[backend]
		db, err := ConnectDB(dialect, conn)
		if err != nil {
			return nil, errors.Wrapf(err, "connect %s store", backend)
		}
		return NewSQLStore(db, dialect)
	default:
		return NewFileStore(conn)
	}
}
