package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
)

func newTestStorage(t *testing.T, dir string) *Storage {
	t.Helper()
	s, err := New(context.Background(), config.StorageConfig{Type: "local", LocalPath: dir})
	require.NoError(t, err)
	return s
}

func record(runID, profileID string, started time.Time) RunRecord {
	return RunRecord{
		Summary: domain.BackfillSummary{
			RunID:     runID,
			ProfileID: profileID,
			NewAdded:  12,
			StartedAt: started,
		},
		SelectedIDs: []string{"ext-1"},
	}
}

func TestLocalSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	s := newTestStorage(t, dir)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveRun(ctx, record("run-1", "p1", now.Add(-time.Hour))))
	require.NoError(t, s.SaveRun(ctx, record("run-2", "p2", now)))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Summary.NewAdded)

	// a fresh instance sees the archived runs
	reloaded := newTestStorage(t, dir)
	runs, err := reloaded.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)

	p1, err := reloaded.RecentRuns(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.Equal(t, "run-1", p1[0].RunID)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStorage(t, t.TempDir())
	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveRunRequiresID(t *testing.T) {
	s := newTestStorage(t, t.TempDir())
	assert.Error(t, s.SaveRun(context.Background(), RunRecord{}))
}

type fakeDynamo struct {
	items []map[string]types.AttributeValue
	query *dynamodb.QueryInput
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.query = in
	return &dynamodb.QueryOutput{Items: f.items}, nil
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestAWSSaveListGet(t *testing.T) {
	ddb := &fakeDynamo{}
	s3c := &fakeS3{objects: map[string][]byte{}}
	a := NewAWSStorageWithClients(ddb, s3c, "podmatch-runs", "archive", 30)
	s := NewWithAWS(config.StorageConfig{}, a)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, record("run-7", "p1", started)))
	require.Contains(t, s3c.objects, "runs/run-7.json")
	require.Len(t, ddb.items, 1)

	var item runIndexItem
	require.NoError(t, attributevalue.UnmarshalMap(ddb.items[0], &item))
	assert.Equal(t, "PROFILE#p1", item.Profile)
	assert.True(t, strings.HasPrefix(item.Run, "RUN#2026-02-01T09:30:00Z#"))
	assert.Equal(t, started.Add(30*24*time.Hour).Unix(), item.ExpiresAt)

	runs, err := s.RecentRuns(ctx, "p1", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-7", runs[0].RunID)
	assert.False(t, aws.ToBool(ddb.query.ScanIndexForward))

	got, err := a.GetRun(ctx, "run-7")
	require.NoError(t, err)
	assert.Equal(t, []string{"ext-1"}, got.SelectedIDs)

	_, err = a.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestAWSRecentRunsRequiresProfile(t *testing.T) {
	s := NewWithAWS(config.StorageConfig{}, NewAWSStorageWithClients(&fakeDynamo{}, &fakeS3{objects: map[string][]byte{}}, "podmatch-runs", "archive", 0))
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, record("run-1", "p1", time.Now())))

	_, err := s.RecentRuns(ctx, "", 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
