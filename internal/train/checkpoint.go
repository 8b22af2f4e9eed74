package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/refinenet/internal/model"
	"github.com/born-ml/refinenet/internal/safetensors"
)

// Checkpointer writes one SafeTensors file per curriculum stage into a directory.
// Every file of a run carries the same run id in its metadata.
type Checkpointer struct {
	dir   string
	runID uuid.UUID
}

// NewCheckpointer creates dir if needed and starts a new run.
func NewCheckpointer(dir string) (*Checkpointer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create checkpoint directory")
	}
	return &Checkpointer{dir: dir, runID: uuid.New()}, nil
}

// RunID returns the id written into every checkpoint of this run.
func (c *Checkpointer) RunID() uuid.UUID {
	return c.runID
}

// Path returns the file name of stage i.
func (c *Checkpointer) Path(stage int) string {
	return filepath.Join(c.dir, fmt.Sprintf("stage-%d.safetensors", stage))
}

// Save writes net as stage stage and returns the file path. The metadata
// holds the run id, the stage, the learning rate, the model type and
// net.Metadata().
func Save[B tensor.Backend](c *Checkpointer, net model.Network[B], stage int, lr float64) (string, error) {
	meta := map[string]string{
		"run_id": c.runID.String(),
		"stage":  strconv.Itoa(stage),
		"lr":     strconv.FormatFloat(lr, 'g', -1, 64),
	}
	for k, v := range net.Metadata() {
		meta[k] = v
	}
	meta["model_type"] = "refinenet." + meta["kind"]
	path := c.Path(stage)
	if err := safetensors.WriteFile(path, net.StateDict(), meta); err != nil {
		return "", errors.Wrapf(err, "save %s", path)
	}
	return path, nil
}

// Load reads the checkpoint at path into net and returns its metadata.
func Load[B tensor.Backend](path string, backend B, net model.Network[B]) (map[string]string, error) {
	state, meta, err := safetensors.ReadFile(path, backend.Device())
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	if err := net.LoadStateDict(state); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return meta, nil
}
