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

package backups

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
)

// Uploader is the part of s3manager.Uploader used for backups.
type Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// Archive zips every named document found in the store into w. Missing
// documents are skipped. It returns the number of documents written.
func Archive(ctx context.Context, store database.Store, names []string, w io.Writer) (int, error) {
	writer := zip.NewWriter(w)
	written := 0
	for _, name := range names {
		data, err := store.Get(ctx, name)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			_ = writer.Close()
			return written, errors.Wrapf(err, "read %s", name)
		}
		entry, err := writer.Create(name)
		if err != nil {
			_ = writer.Close()
			return written, err
		}
		if _, err := entry.Write(data); err != nil {
			_ = writer.Close()
			return written, err
		}
		written++
	}
	return written, writer.Close()
}

// WriteArchive stores the archive under dir/<date>/economy-<time>.zip and
// returns its path.
func WriteArchive(ctx context.Context, store database.Store, names []string, dir string, now time.Time) (string, error) {
	dayDir := filepath.Join(dir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dayDir, fmt.Sprintf("economy-%s.zip", now.Format("150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	n, err := Archive(ctx, store, names, f)
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	logrus.Infof("backed up %d documents to %s", n, path)
	return path, nil
}

// NewUploader builds an S3 uploader from the backup settings. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewUploader(cfg config.BackupConfig) (Uploader, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.AwsAccessKeyId != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AwsAccessKeyId, cfg.AwsSecretAccessKey, "")
	}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return s3manager.NewUploader(sess), nil
}

// Upload sends the archive at path to bucket under its date/name key.
func Upload(ctx context.Context, up Uploader, bucket, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := filepath.ToSlash(filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
	out, err := up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload %s", key)
	}
	return out.Location, nil
}

// Run writes a local archive and, when a bucket is configured, uploads it.
func Run(ctx context.Context, cfg config.BackupConfig, store database.Store, names []string, up Uploader) (string, error) {
	path, err := WriteArchive(ctx, store, names, cfg.Dir, time.Now())
	if err != nil {
		return "", err
	}
	if cfg.S3Bucket == "" {
		return path, nil
	}
	if up == nil {
		if up, err = NewUploader(cfg); err != nil {
			return path, err
		}
	}
	location, err := Upload(ctx, up, cfg.S3Bucket, path)
	if err != nil {
		return path, err
	}
	logrus.Infof("uploaded backup to %s", location)
	return path, nil
}
