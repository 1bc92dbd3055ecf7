package program

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupVersion tags the backup format so future readers can migrate.
const BackupVersion = "1.0"

// Format selects the serialization used for export and import.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Backup wraps an exported record set with metadata.
type Backup struct {
	Programs   []Program `json:"programs" yaml:"programs"`
	ExportDate time.Time `json:"exportDate" yaml:"exportDate"`
	Version    string    `json:"version" yaml:"version"`
}

// Export writes the given programs to w as a backup document.
func Export(w io.Writer, programs []Program, format Format) error {
	backup := Backup{
		Programs:   programs,
		ExportDate: time.Now().UTC(),
		Version:    BackupVersion,
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(backup); err != nil {
			return fmt.Errorf("failed to encode backup: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		if err := enc.Encode(backup); err != nil {
			return fmt.Errorf("failed to encode backup: %w", err)
		}
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	return nil
}

// Import parses a backup document from r. Both JSON and YAML documents are
// accepted; the format is detected from the content.
func Import(r io.Reader) (Backup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Backup{}, fmt.Errorf("failed to read backup: %w", err)
	}

	var backup Backup
	if jsonErr := json.Unmarshal(data, &backup); jsonErr != nil {
		if yamlErr := yaml.Unmarshal(data, &backup); yamlErr != nil {
			return Backup{}, fmt.Errorf("failed to parse backup: %w", jsonErr)
		}
	}

	if backup.Programs == nil {
		return Backup{}, fmt.Errorf("invalid backup file: missing programs list")
	}
	for _, p := range backup.Programs {
		if err := p.Validate(); err != nil {
			return Backup{}, fmt.Errorf("invalid program %s in backup: %w", p.ID, err)
		}
	}
	return backup, nil
}
