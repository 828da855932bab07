package guardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditRecord captures one orchestrated run. It is created once at loop exit,
// persisted immediately and never mutated afterwards.
type AuditRecord struct {
	RunID         string    `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	Prompt        string    `json:"prompt"`
	PromptVersion string    `json:"prompt_version"`
	Model         string    `json:"model"`
	Temperature   *float64  `json:"temperature"`
	Attempts      int       `json:"attempts"`
	RawOutput     string    `json:"raw_output"`
	Errors        []string  `json:"errors"`
	// Final is the validated value on success and the last raw text otherwise.
	Final   any  `json:"final"`
	Success bool `json:"success"`
}

// MarshalIndent renders the record the way the file sink stores it.
func (r AuditRecord) MarshalIndent() ([]byte, error) {
	if r.Errors == nil {
		r.Errors = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sink is an append-only audit store. Append persists rec as a new entry and
// returns where it went. Failures are fatal for the run that produced rec.
type Sink interface {
	Append(ctx context.Context, rec AuditRecord) (string, error)
}

// FileSink writes one JSON document per record into a directory.
type FileSink struct {
	dir string
}

// NewFileSink returns a FileSink rooted at dir. The directory is created on first append.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the directory records are written to.
func (s *FileSink) Dir() string { return s.dir }

// Append writes rec to retry-<UTC timestamp>-<random>.json. Names sort in creation
// order; the random suffix and O_EXCL guarantee an existing file is never overwritten.
func (s *FileSink) Append(ctx context.Context, rec AuditRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &AuditWriteError{Path: s.dir, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &AuditWriteError{Path: s.dir, Err: err}
	}
	data, err := rec.MarshalIndent()
	if err != nil {
		return "", &AuditWriteError{Err: err}
	}
	ts := rec.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := fmt.Sprintf("retry-%s-%s.json", ts.UTC().Format("20060102-150405.000000000"), suffix)
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", &AuditWriteError{Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", &AuditWriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &AuditWriteError{Path: path, Err: err}
	}
	return path, nil
}

// MultiSink appends every record to each sink in order. The first failure stops
// the append and is returned; locations of successful appends are comma-joined.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, rec AuditRecord) (string, error) {
	if len(m) == 0 {
		return "", &AuditWriteError{Err: errors.New("no audit sinks configured")}
	}
	locs := make([]string, 0, len(m))
	for _, s := range m {
		loc, err := s.Append(ctx, rec)
		if err != nil {
			var awe *AuditWriteError
			if !errors.As(err, &awe) {
				err = &AuditWriteError{Err: err}
			}
			return "", err
		}
		locs = append(locs, loc)
	}
	return strings.Join(locs, ","), nil
}

var (
	_ Sink = (*FileSink)(nil)
	_ Sink = MultiSink(nil)
)
