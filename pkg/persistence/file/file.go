// Package file provides file-based persistence for local runs and
// tests. Records are stored as one JSON document per file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/outflowhq/outflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root           string
	flowRepo       *FlowRepository
	automationRepo *AutomationRepository
	scheduleRepo   *ScheduleRepository
	executionRepo  *ExecutionRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		flowRepo:       &FlowRepository{root: cleanRoot},
		automationRepo: &AutomationRepository{root: cleanRoot},
		scheduleRepo:   &ScheduleRepository{root: cleanRoot},
		executionRepo:  &ExecutionRepository{root: cleanRoot},
	}
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) AutomationRepository() persistence.AutomationRepository {
	return p.automationRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeRecord marshals a record into <root>/<collection>/<id>.json.
func writeRecord(root, collection, id string, record any) error {
	dir := filepath.Join(root, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644)
}

// readRecord unmarshals <root>/<collection>/<id>.json into out.
// Returns persistence.ErrNotFound when the file does not exist.
func readRecord(root, collection, id string, out any) error {
	data, err := os.ReadFile(filepath.Join(root, collection, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.ErrNotFound
		}

		return err
	}

	return json.Unmarshal(data, out)
}

func deleteRecord(root, collection, id string) error {
	err := os.Remove(filepath.Join(root, collection, id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.ErrNotFound
	}

	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound)
}

func wrapNotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, persistence.ErrNotFound)
}

func wrapVersionNotFound(id string, version int) error {
	return fmt.Errorf("flow %s version %d: %w", id, version, persistence.ErrVersionNotFound)
}

// listIDs returns the record ids present in a collection.
func listIDs(root, collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}

	return ids, nil
}
