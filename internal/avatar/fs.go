package avatar

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// FSStore хранит фотографии в локальном каталоге.
// publicPrefix — путь, под которым каталог раздаётся клиентам.
type FSStore struct {
	dir          string
	publicPrefix string
}

// NewFSStore создаёт хранилище в каталоге dir.
func NewFSStore(dir, publicPrefix string) *FSStore {
	return &FSStore{dir: dir, publicPrefix: publicPrefix}
}

// Save записывает файл атомарно: во временный файл, затем rename.
func (s *FSStore) Save(_ context.Context, externalID string, data []byte) (string, error) {
	name, err := objectName(externalID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("создание каталога аватаров: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("создание временного файла: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("запись аватара: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("запись аватара: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("права аватара: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("сохранение аватара: %w", err)
	}

	return path.Join(s.publicPrefix, name), nil
}
