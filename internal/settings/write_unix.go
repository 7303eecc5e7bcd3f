//go:build !windows

package settings

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeFileAtomic writes data to a temp file, fsyncs it and renames it over
// path.
func writeFileAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(filePerm))
	if err != nil {
		return fmt.Errorf("create pending settings file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write settings data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace settings file: %w", err)
	}
	return nil
}
