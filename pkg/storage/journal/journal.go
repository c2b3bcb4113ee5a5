// Package journal appends samples to a JSON-lines log file.
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/logging"
)

// Journal writes one JSON object per line.
type Journal struct {
	file *logging.RollingFile
}

// Open appends to path, rolling it at maxMB (0 disables rolling).
func Open(path string, maxMB int) (*Journal, error) {
	file, err := logging.OpenRollingFile(path, maxMB)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: file}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.file.Path()
}

// Record appends sample as a single line.
func (j *Journal) Record(ctx context.Context, sample core.Sample) error {
	_ = ctx
	line, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Close closes the file.
func (j *Journal) Close() error {
	return j.file.Close()
}
