package scene

import (
	"fmt"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"go.uber.org/multierr"
)

// Validate reports every integrity problem in st: duplicate ids, values
// out of range and connections with a missing end.
func Validate(st types.State) error {
	var err error
	seen := make(map[int64]bool, len(st.Items))
	for _, it := range st.Items {
		if seen[it.ID] {
			err = multierr.Append(err, fmt.Errorf("item %d: %w", it.ID, ErrDuplicateID))
		}
		seen[it.ID] = true
		if it.X < 0 || it.X > 1 || it.Y < 0 || it.Y > 1 {
			err = multierr.Append(err, fmt.Errorf("item %d: position (%g,%g) outside canvas", it.ID, it.X, it.Y))
		}
		if it.Scale < MinScale || it.Scale > MaxScale {
			err = multierr.Append(err, fmt.Errorf("item %d: scale %g out of range", it.ID, it.Scale))
		}
		if it.Rotation%RotationStep != 0 || it.Rotation < 0 || it.Rotation >= 360 {
			err = multierr.Append(err, fmt.Errorf("item %d: rotation %d is not a quarter turn", it.ID, it.Rotation))
		}
	}

	conns := make(map[int64]bool, len(st.Connections))
	for _, c := range st.Connections {
		if conns[c.ID] {
			err = multierr.Append(err, fmt.Errorf("connection %d: %w", c.ID, ErrDuplicateID))
		}
		conns[c.ID] = true
		if !seen[c.From] || !seen[c.To] {
			err = multierr.Append(err, fmt.Errorf("connection %d: %w", c.ID, ErrItemNotFound))
		}
		if c.From == c.To {
			err = multierr.Append(err, fmt.Errorf("connection %d: %w", c.ID, ErrSelfConnection))
		}
	}
	return err
}
