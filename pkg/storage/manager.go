package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	errs "pixiedl/pkg/errors"
)

// Manager places downloaded photos in the output directory under
// collision-free names.
type Manager struct {
	fs        afero.Fs
	outputDir string
	reserved  map[string]bool
	mu        sync.Mutex
}

// NewManagerWithFs creates a storage manager on the given filesystem,
// creating the output directory and its parents if needed.
func NewManagerWithFs(fs afero.Fs, outputDir string) (*Manager, error) {
	if err := fs.MkdirAll(outputDir, 0755); err != nil {
		return nil, errs.New(errs.ErrorTypeFilesystem, "failed to create output directory", err)
	}

	return &Manager{
		fs:        fs,
		outputDir: outputDir,
		reserved:  make(map[string]bool),
	}, nil
}

// Save writes data under name, or under name_1, name_2... when taken, and
// returns the path written. The write goes through a temporary file and a
// rename so a partial file never carries the final name.
func (m *Manager) Save(name string, data []byte) (string, error) {
	final, err := m.reserve(name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.outputDir, final)
	if err := m.writeAtomic(path, data); err != nil {
		m.release(final)
		return "", err
	}

	return path, nil
}

// reserve picks the first free name and holds it for this process.
// Another process writing the same directory can still race us between the
// existence check and the rename.
func (m *Manager) reserve(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; ; i++ {
		candidate := CollisionName(name, i)
		if m.reserved[candidate] {
			continue
		}

		exists, err := afero.Exists(m.fs, filepath.Join(m.outputDir, candidate))
		if err != nil {
			return "", errs.New(errs.ErrorTypeFilesystem, "failed to check "+candidate, err)
		}
		if exists {
			continue
		}

		m.reserved[candidate] = true
		return candidate, nil
	}
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	delete(m.reserved, name)
	m.mu.Unlock()
}

func (m *Manager) writeAtomic(path string, data []byte) error {
	tmp, err := afero.TempFile(m.fs, m.outputDir, "."+filepath.Base(path)+"-*.part")
	if err != nil {
		return errs.New(errs.ErrorTypeFilesystem, "failed to create temporary file", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	closeErr := tmp.Close()

	if err != nil {
		m.fs.Remove(tmpName)
		return errs.New(errs.ErrorTypeFilesystem, "failed to write photo data", err)
	}
	if closeErr != nil {
		m.fs.Remove(tmpName)
		return errs.New(errs.ErrorTypeFilesystem, "failed to close file", closeErr)
	}

	if err := m.fs.Rename(tmpName, path); err != nil {
		m.fs.Remove(tmpName)
		return errs.New(errs.ErrorTypeFilesystem, "failed to rename temporary file", err)
	}

	return nil
}

// CollisionName returns name for n == 0 and inserts _n before the extension otherwise
func CollisionName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}
