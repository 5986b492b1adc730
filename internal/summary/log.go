// Package summary maintains the append-only JSON log of test-data snapshots.
//
// The file is a single JSON array. Appending loads the array, adds one entry and
// rewrites the whole file through a temporary file and rename. Existing entries
// are kept as raw JSON so unknown fields survive the rewrite.
package summary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// TimeLayout is the timestamp format used for entries.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is one snapshot. Nil slices and messages are written as JSON null, which
// marks "not fetched or fetch failed"; an empty slice means "fetched, none found".
type Entry struct {
	Timestamp     string            `json:"timestamp"`
	TargetEventID string            `json:"target_event_id"`
	EventDetails  json.RawMessage   `json:"event_details"`
	Customers     []json.RawMessage `json:"customers"`
	Gtags         []json.RawMessage `json:"gtags"`
	Error         *string           `json:"error"`
}

// ErrNotArray reports a log file whose top-level value is not a JSON array.
var ErrNotArray = errors.New("summary: file does not contain a JSON array")

// Read returns the entries stored at path. A missing file yields an error
// satisfying errors.Is(err, os.ErrNotExist); invalid JSON and ErrNotArray are
// reported as well. Callers that only append should use Append, which treats all
// of these as an empty log.
func Read(path string) ([]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		if json.Valid(trimmed) {
			return nil, ErrNotArray
		}
		return nil, fmt.Errorf("summary: invalid JSON in %s", path)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("summary: invalid JSON in %s: %w", path, err)
	}
	return entries, nil
}

// Append adds e to the log at path and returns the new number of entries. The
// returned warning is non-nil when the previous content could not be used and the
// log was started fresh; it never prevents the write.
func Append(path string, e Entry) (total int, warning error, err error) {
	entries, rerr := Read(path)
	if rerr != nil {
		entries = nil
		if !errors.Is(rerr, os.ErrNotExist) {
			warning = rerr
		}
	}
	raw, err := marshal(e)
	if err != nil {
		return 0, warning, err
	}
	entries = append(entries, raw)
	if err := write(path, entries); err != nil {
		return 0, warning, err
	}
	return len(entries), warning, nil
}

func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimSpace(buf.Bytes())), nil
}

func write(path string, entries []json.RawMessage) error {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
