package backups

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
)

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	args := m.Called(aws.StringValue(input.Bucket), aws.StringValue(input.Key))
	if out := args.Get(0); out != nil {
		return out.(*s3manager.UploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func seededStore(t *testing.T) *database.FileStore {
	t.Helper()
	store, err := database.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "accounts.json", []byte(`{"alice":{"balance":10}}`)))
	require.NoError(t, store.Put(ctx, "loans.json", []byte(`{}`)))
	return store
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		out[f.Name] = string(body)
	}
	return out
}

func TestArchive_SkipsMissingDocuments(t *testing.T) {
	store := seededStore(t)
	var buf bytes.Buffer

	n, err := Archive(context.Background(), store, []string{"accounts.json", "savings.json", "loans.json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	files := readZip(t, buf.Bytes())
	assert.Len(t, files, 2)
	assert.Equal(t, `{"alice":{"balance":10}}`, files["accounts.json"])
	assert.Equal(t, `{}`, files["loans.json"])
}

func TestWriteArchive_Layout(t *testing.T) {
	store := seededStore(t)
	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	path, err := WriteArchive(context.Background(), store, []string{"accounts.json"}, dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-03-09", "economy-140506.zip"), path)
	assert.FileExists(t, path)
}

func TestUpload_UsesDatedKey(t *testing.T) {
	store := seededStore(t)
	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	path, err := WriteArchive(context.Background(), store, []string{"loans.json"}, dir, now)
	require.NoError(t, err)

	up := new(mockUploader)
	up.On("UploadWithContext", "economy-backups", "2024-03-09/economy-140506.zip").
		Return(&s3manager.UploadOutput{Location: "s3://economy-backups/2024-03-09/economy-140506.zip"}, nil)

	location, err := Upload(context.Background(), up, "economy-backups", path)
	require.NoError(t, err)
	assert.Equal(t, "s3://economy-backups/2024-03-09/economy-140506.zip", location)
	up.AssertExpectations(t)
}

func TestRun_LocalOnlyWithoutBucket(t *testing.T) {
	store := seededStore(t)
	up := new(mockUploader)

	path, err := Run(context.Background(), config.BackupConfig{Dir: t.TempDir()}, store, []string{"accounts.json"}, up)
	require.NoError(t, err)
	assert.FileExists(t, path)
	up.AssertNotCalled(t, "UploadWithContext", mock.Anything, mock.Anything)
}

func TestRun_UploadFailure(t *testing.T) {
	store := seededStore(t)
	up := new(mockUploader)
	up.On("UploadWithContext", "bucket", mock.Anything).Return(nil, assert.AnError)

	path, err := Run(context.Background(), config.BackupConfig{Dir: t.TempDir(), S3Bucket: "bucket"}, store, []string{"accounts.json"}, up)
	assert.ErrorIs(t, err, assert.AnError)
	assert.FileExists(t, path)
}
