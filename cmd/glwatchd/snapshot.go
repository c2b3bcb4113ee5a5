package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rexliu/glwatch/pkg/core"
)

const snapshotName = "latest.json"

// writeSnapshot replaces latest.json so readers never see a partial file.
func writeSnapshot(profileDir string, sample core.Sample) error {
	path := filepath.Join(profileDir, snapshotName)
	tmp, err := os.CreateTemp(profileDir, snapshotName+".*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sample); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
