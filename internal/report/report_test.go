package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

func TestReport_MarshalJSON(t *testing.T) {
	r := &Report{
		RunID:     "run-1",
		Status:    StatusFailed,
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		Failures: []Failure{
			{Index: 1, OldEmail: "a@example.com", NewEmail: "b@example.com", Reason: "user not found"},
		},
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := r.MarshalJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "failed", decoded["status"])
	assert.Equal(t, 1.0, decoded["failed"])
	failures := decoded["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "user not found", failures[0].(map[string]any)["reason"])
}

func TestReport_MarshalJSONEmptyFailures(t *testing.T) {
	data, err := (&Report{RunID: "r"}).MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failures": []`)
}

func TestBlobPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	open := func(ctx context.Context, name string) (*blob.Bucket, error) {
		assert.Equal(t, "reports-bucket", name)
		return fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	}

	p := NewBlobPublisher(open, "reports-bucket", "reports/{run_id}.json")
	require.NoError(t, p.Publish(ctx, &Report{RunID: "abc", Status: StatusClean, Total: 1, Succeeded: 1}))

	data, err := os.ReadFile(filepath.Join(dir, "reports", "abc.json"))
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "abc", got.RunID)
	assert.Equal(t, StatusClean, got.Status)
	assert.Equal(t, 1, got.Succeeded)
}

func TestBlobPublisher_OpenError(t *testing.T) {
	open := func(ctx context.Context, name string) (*blob.Bucket, error) {
		return nil, errors.New("no credentials")
	}

	err := NewBlobPublisher(open, "b", "r.json").Publish(context.Background(), &Report{RunID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestBlobPublisher_Key(t *testing.T) {
	p := NewBlobPublisher(nil, "b", "reports/{run_id}/summary.json")
	assert.Equal(t, "reports/42/summary.json", p.Key("42"))

	p = NewBlobPublisher(nil, "b", "reports/latest.json")
	assert.Equal(t, "reports/latest.json", p.Key("42"))
}
