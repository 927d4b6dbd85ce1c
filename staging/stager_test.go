package staging

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	objects map[string][]byte
	err     error
	input   *s3.GetObjectInput
}

func (f *fakeDownloader) Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	f.input = input
	if f.err != nil {
		return 0, f.err
	}
	data, ok := f.objects[aws.ToString(input.Bucket)+"/"+aws.ToString(input.Key)]
	if !ok {
		return 0, errors.New("NoSuchKey")
	}
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri    string
		want   Object
		errors bool
	}{
		{uri: "s3://docs/reports/q1.pdf", want: Object{Bucket: "docs", Key: "reports/q1.pdf"}},
		{uri: "S3://docs/a.txt", want: Object{Bucket: "docs", Key: "a.txt"}},
		{uri: "s3://docs//a.txt", want: Object{Bucket: "docs", Key: "a.txt"}},
		{uri: "s3://docs", errors: true},
		{uri: "s3:///a.txt", errors: true},
		{uri: "s3://docs/folder/", errors: true},
		{uri: "/tmp/a.txt", errors: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.errors {
				assert.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObject(t *testing.T) {
	obj := Object{Bucket: "docs", Key: "reports/q1.pdf"}
	assert.Equal(t, "s3://docs/reports/q1.pdf", obj.String())
	assert.Equal(t, "q1.pdf", obj.Filename())
}

func TestResolve_LocalCopy(t *testing.T) {
	srcDir, stageDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("annual report"), 0o644))

	s := NewStager(WithTempDir(stageDir), WithLogger(testLogger()))
	assert.False(t, s.RemoteEnabled())

	staged, err := s.Resolve(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, stageDir, filepath.Dir(staged.Path))
	assert.Equal(t, ".txt", filepath.Ext(staged.Path))
	assert.Equal(t, "report.txt", staged.Filename)
	assert.Equal(t, src, staged.Source)
	assert.Equal(t, int64(len("annual report")), staged.Size)
	assert.False(t, staged.Remote)

	data, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, "annual report", string(data))

	require.NoError(t, staged.Cleanup())
	_, err = os.Stat(staged.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	data, err = os.ReadFile(src)
	require.NoError(t, err, "source must survive cleanup")
	assert.Equal(t, "annual report", string(data))
}

func TestResolve_LocalRejects(t *testing.T) {
	stageDir := t.TempDir()
	s := NewStager(WithTempDir(stageDir), WithLogger(testLogger()))

	_, err := s.Resolve(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = s.Resolve(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotRegular)

	entries, err := os.ReadDir(stageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolve_RemoteDisabled(t *testing.T) {
	s := NewStager(WithLogger(testLogger()))
	_, err := s.Resolve(context.Background(), "s3://docs/a.txt")
	assert.ErrorIs(t, err, ErrRemoteDisabled)
}

func TestResolve_Download(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{objects: map[string][]byte{"docs/reports/q1.txt": []byte("quarterly numbers")}}
	s := NewStager(WithDownloader(dl), WithTempDir(dir), WithLogger(testLogger()))
	require.True(t, s.RemoteEnabled())

	staged, err := s.Resolve(context.Background(), "s3://docs/reports/q1.txt")
	require.NoError(t, err)

	assert.True(t, staged.Remote)
	assert.Equal(t, "q1.txt", staged.Filename)
	assert.Equal(t, dir, filepath.Dir(staged.Path))
	assert.Equal(t, ".txt", filepath.Ext(staged.Path))
	assert.Equal(t, "docs", aws.ToString(dl.input.Bucket))
	assert.Equal(t, "reports/q1.txt", aws.ToString(dl.input.Key))

	data, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))

	require.NoError(t, staged.Cleanup())
	_, err = os.Stat(staged.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NoError(t, staged.Cleanup())
}

func TestResolve_CleanupAfterExternalRemove(t *testing.T) {
	dl := &fakeDownloader{objects: map[string][]byte{"docs/a.txt": []byte("x")}}
	s := NewStager(WithDownloader(dl), WithTempDir(t.TempDir()), WithLogger(testLogger()))

	staged, err := s.Resolve(context.Background(), "s3://docs/a.txt")
	require.NoError(t, err)
	require.NoError(t, os.Remove(staged.Path))
	assert.NoError(t, staged.Cleanup())
}

func TestResolve_DownloadFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{err: errors.New("access denied")}
	s := NewStager(WithDownloader(dl), WithTempDir(dir), WithLogger(testLogger()))

	_, err := s.Resolve(context.Background(), "s3://docs/a.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
