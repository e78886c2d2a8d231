// Package file provides file-based persistence for pipelines, runs and
// schedules. Each entity is one JSON document under the root directory.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/gantryci/gantry/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	pipelineRepo *PipelineRepository
	runRepo      *RunRepository
	scheduleRepo *ScheduleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		pipelineRepo: NewPipelineRepository(cleanRoot),
		runRepo:      NewRunRepository(cleanRoot),
		scheduleRepo: NewScheduleRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) PipelineRepository() persistence.PipelineRepository {
	return fp.pipelineRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}
