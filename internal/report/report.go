// Package report writes a JSON summary of a finished run to object storage.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-email-rename/internal/source"
)

// Run statuses.
const (
	StatusClean  = "clean"
	StatusFailed = "failed"
	StatusEmpty  = "empty"
)

// Report describes the outcome of one run.
type Report struct {
	RunID      string       `json:"run_id"`
	Source     string       `json:"source"`
	Mode       string       `json:"mode"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Dropped    int          `json:"dropped_rows"`
	Failures   []Failure    `json:"failures"`
	Producer   ProducerInfo `json:"producer"`
}

// Failure is one failed rename, in input order.
type Failure struct {
	Index    int    `json:"index"`
	OldEmail string `json:"old_email"`
	NewEmail string `json:"new_email"`
	Reason   string `json:"reason"`
}

// ProducerInfo describes the software that produced the report.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the report as indented JSON.
func (r *Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	a := Alias(*r)
	if a.Failures == nil {
		a.Failures = []Failure{}
	}
	return json.MarshalIndent(&a, "", "  ")
}

// Publisher stores a finished report.
type Publisher interface {
	Publish(ctx context.Context, r *Report) error
}

// BlobPublisher writes reports to a bucket. "{run_id}" in the key template is
// replaced with the run ID.
type BlobPublisher struct {
	open        source.Opener
	bucket      string
	keyTemplate string
}

// NewBlobPublisher creates a publisher for bucket/keyTemplate.
func NewBlobPublisher(open source.Opener, bucket, keyTemplate string) *BlobPublisher {
	return &BlobPublisher{open: open, bucket: bucket, keyTemplate: keyTemplate}
}

// Key returns the object key for a run.
func (p *BlobPublisher) Key(runID string) string {
	return strings.ReplaceAll(p.keyTemplate, "{run_id}", runID)
}

// Publish writes the report as a single JSON object.
func (p *BlobPublisher) Publish(ctx context.Context, r *Report) error {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	bucket, err := p.open(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", p.bucket, err)
	}
	defer bucket.Close()

	key := p.Key(r.RunID)
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write report to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// Verify BlobPublisher implements Publisher.
var _ Publisher = (*BlobPublisher)(nil)
