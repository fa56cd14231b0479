package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

const FileVersion = "1.0"

var ErrInvalidFile = errors.New("invalid setup file")

// File is the saved-setup format shared with the browser export.
type File struct {
	Version     string             `json:"version"`
	Timestamp   time.Time          `json:"timestamp"`
	Items       []types.Item       `json:"items"`
	Connections []types.Connection `json:"connections"`
}

// Export writes st as an indented setup file stamped with now.
func Export(w io.Writer, st types.State, now time.Time) error {
	st = st.Clone()
	f := File{
		Version:     FileVersion,
		Timestamp:   now.UTC(),
		Items:       st.Items,
		Connections: st.Connections,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("export setup: %w", err)
	}
	return nil
}

// Import reads a setup file. Both items and connections must be JSON
// arrays; anything else is rejected before the caller touches its scene.
func Import(r io.Reader) (types.State, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return types.State{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	var raw struct {
		Items       json.RawMessage `json:"items"`
		Connections json.RawMessage `json:"connections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.State{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if !isArray(raw.Items) {
		return types.State{}, fmt.Errorf("%w: items is not an array", ErrInvalidFile)
	}
	if !isArray(raw.Connections) {
		return types.State{}, fmt.Errorf("%w: connections is not an array", ErrInvalidFile)
	}

	st := types.EmptyState()
	if err := json.Unmarshal(raw.Items, &st.Items); err != nil {
		return types.State{}, fmt.Errorf("%w: items: %v", ErrInvalidFile, err)
	}
	if err := json.Unmarshal(raw.Connections, &st.Connections); err != nil {
		return types.State{}, fmt.Errorf("%w: connections: %v", ErrInvalidFile, err)
	}
	return st, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
