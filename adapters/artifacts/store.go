// Package artifacts stores posterior and prediction matrices as timestamped
// JSON files in a local directory.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"firecarbon/domain/core"
	"firecarbon/domain/posterior"
	"firecarbon/internal"
	"firecarbon/ports"

	"gonum.org/v1/gonum/mat"
)

// Namespaces used by the two model variants.
const (
	NamespacePosteriorTotal         = "posterior-total"
	NamespacePosteriorRecalcitrant  = "posterior-recalcitrant"
	NamespacePredictionTotal        = "prediction-total"
	NamespacePredictionRecalcitrant = "prediction-recalcitrant"

	fileExt = ".json"
)

// envelope is the on-disk form. Data is the gonum binary encoding of the
// matrix, base64 inside JSON.
type envelope struct {
	ports.ArtifactMetadata
	Cases []string `json:"cases,omitempty"`
	Data  []byte   `json:"data,omitempty"`
}

// FileStore implements ports.ArtifactRepository on the local filesystem.
type FileStore struct {
	dir    string
	logger *internal.Logger
}

var _ ports.ArtifactRepository = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string, logger *internal.Logger) *FileStore {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &FileStore{dir: dir, logger: logger.WithComponent("artifacts")}
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

// FileName builds <namespace>_<YYYYMMDD_HHMMSS>_<id8>.json.
func FileName(namespace string, created core.Timestamp, id core.ID) string {
	return fmt.Sprintf("%s_%s_%s%s", namespace, created.FileStamp(), id.Short(), fileExt)
}

// Pattern is the glob matching every artifact of a namespace.
func Pattern(namespace string) string {
	return namespace + "_*" + fileExt
}

// SavePosterior writes a posterior sample matrix.
func (s *FileStore) SavePosterior(ctx context.Context, namespace string, seed uint64, m *posterior.Matrix) (*ports.ArtifactMetadata, error) {
	env := envelope{ArtifactMetadata: ports.ArtifactMetadata{
		Kind:    core.ArtifactPosterior,
		Seed:    seed,
		Rows:    m.Rows(),
		Columns: m.Columns,
		Partial: m.Partial,
	}}
	return s.save(ctx, namespace, env, m.Data)
}

// SavePredictions writes a predictive matrix.
func (s *FileStore) SavePredictions(ctx context.Context, namespace string, seed uint64, p *posterior.Predictions) (*ports.ArtifactMetadata, error) {
	rows, _ := p.Data.Dims()
	env := envelope{
		ArtifactMetadata: ports.ArtifactMetadata{
			Kind: core.ArtifactPrediction,
			Seed: seed,
			Rows: rows,
		},
		Cases: p.Cases,
	}
	return s.save(ctx, namespace, env, p.Data)
}

func (s *FileStore) save(ctx context.Context, namespace string, env envelope, data *mat.Dense) (*ports.ArtifactMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if namespace == "" || strings.ContainsAny(namespace, `_/\`) {
		return nil, core.NewConfigurationError("invalid artifact namespace %q", namespace)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	id := core.NewID()
	env.ID = core.ArtifactID(id)
	env.Namespace = namespace
	env.CreatedAt = core.Now()
	env.Name = FileName(namespace, env.CreatedAt, id)

	if data != nil {
		raw, err := data.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode matrix: %w", err)
		}
		env.Data = raw
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}

	// write then rename so Latest never sees a half-written file
	path := filepath.Join(s.dir, env.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	s.logger.Info("saved %s artifact %s (%d rows)", env.Kind, env.Name, env.Rows)
	meta := env.ArtifactMetadata
	return &meta, nil
}

// LoadPosterior reads a posterior artifact by file name or path.
func (s *FileStore) LoadPosterior(ctx context.Context, name string) (*posterior.Matrix, *ports.ArtifactMetadata, error) {
	env, data, err := s.load(ctx, name, core.ArtifactPosterior)
	if err != nil {
		return nil, nil, err
	}
	if data != nil {
		if _, c := data.Dims(); c != len(env.Columns) {
			return nil, nil, fmt.Errorf("%w: %s has %d columns but %d names", core.ErrDataLoad, name, c, len(env.Columns))
		}
	}
	meta := env.ArtifactMetadata
	return posterior.FromDense(env.Columns, data, env.Partial), &meta, nil
}

// LoadPredictions reads a prediction artifact by file name or path.
func (s *FileStore) LoadPredictions(ctx context.Context, name string) (*posterior.Predictions, *ports.ArtifactMetadata, error) {
	env, data, err := s.load(ctx, name, core.ArtifactPrediction)
	if err != nil {
		return nil, nil, err
	}
	meta := env.ArtifactMetadata
	return &posterior.Predictions{Cases: env.Cases, Data: data}, &meta, nil
}

func (s *FileStore) load(ctx context.Context, name string, kind core.ArtifactKind) (*envelope, *mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path := name
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(s.dir, name)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrDataLoad, err)
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %s is not an artifact: %v", core.ErrDataLoad, path, err)
	}
	if env.Kind != kind {
		return nil, nil, fmt.Errorf("%w: %s holds a %s artifact, expected %s", core.ErrDataLoad, path, env.Kind, kind)
	}

	var data *mat.Dense
	if len(env.Data) > 0 {
		data = new(mat.Dense)
		if err := data.UnmarshalBinary(env.Data); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", core.ErrDataLoad, path, err)
		}
	}
	s.logger.Debug("loaded %s artifact %s", env.Kind, filepath.Base(path))
	return &env, data, nil
}

// Latest returns the newest artifact of a namespace by modification time.
// Equal times fall back to the name, whose timestamp sorts the same way.
func (s *FileStore) Latest(ctx context.Context, namespace string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	files, err := s.glob(namespace)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", core.NewArtifactNotFoundError(s.dir, Pattern(namespace))
	}
	latest := files[len(files)-1]
	return filepath.Base(latest.path), nil
}

// List returns the metadata of every artifact in a namespace, oldest first.
func (s *FileStore) List(ctx context.Context, namespace string) ([]*ports.ArtifactMetadata, error) {
	files, err := s.glob(namespace)
	if err != nil {
		return nil, err
	}
	out := make([]*ports.ArtifactMetadata, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrDataLoad, err)
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.logger.Warn("skipping unreadable artifact %s: %v", f.path, err)
			continue
		}
		meta := env.ArtifactMetadata
		out = append(out, &meta)
	}
	return out, nil
}

type artifactFile struct {
	path    string
	modTime int64
}

func (s *FileStore) glob(namespace string) ([]artifactFile, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, Pattern(namespace)))
	if err != nil {
		return nil, core.NewConfigurationError("invalid artifact namespace %q", namespace)
	}
	files := make([]artifactFile, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, artifactFile{path: m, modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime < files[j].modTime
		}
		return files[i].path < files[j].path
	})
	return files, nil
}
