package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// filePerm is applied to settings files and their backups.
const filePerm fs.FileMode = 0o640

// ErrMalformed indicates a settings file exists but cannot be decoded.
var ErrMalformed = errors.New("malformed settings file")

// LoadFile reads the YAML document at path into a new handle.
// A missing file yields an error wrapping fs.ErrNotExist.
func LoadFile(path string) (*Data, error) {
	fields, err := readFields(path)
	if err != nil {
		return nil, err
	}
	return &Data{fields: fields}, nil
}

// LoadFileSafe loads path and falls back to path+backupExt when the primary
// file exists but cannot be read. It returns the file that was used.
func LoadFileSafe(path, backupExt string) (*Data, string, error) {
	data, err := LoadFile(path)
	if err == nil {
		return data, path, nil
	}
	if errors.Is(err, fs.ErrNotExist) || backupExt == "" {
		return nil, "", err
	}

	backup := path + backupExt
	data, backupErr := LoadFile(backup)
	if backupErr != nil {
		return nil, "", fmt.Errorf("%w (backup %s: %v)", err, backup, backupErr)
	}
	return data, backup, nil
}

// SaveFile atomically replaces path with the current fields.
func (d *Data) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// SaveFileSafe copies the existing file at path to path+backupExt and then
// atomically replaces path with the current fields.
func (d *Data) SaveFileSafe(path, backupExt string) error {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return err
	}
	return WriteFileSafe(path, backupExt, buf.Bytes())
}

// WriteFileSafe is SaveFileSafe for an already encoded document. path ends up
// holding exactly raw.
func WriteFileSafe(path, backupExt string, raw []byte) error {
	if backupExt != "" {
		previous, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := writeFileAtomic(path+backupExt, previous); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read previous settings: %w", err)
		}
	}
	return writeFileAtomic(path, raw)
}

// Encode writes the fields as a YAML document.
func (d *Data) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d.Snapshot()); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	return nil
}

func readFields(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	fields := make(map[string]any)
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrMalformed, path, err)
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	return fields, nil
}
