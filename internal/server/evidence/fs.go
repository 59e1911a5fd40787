package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/filex"
)

// FSStore keeps evidence as files under a root directory.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		root = "media"
	}
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) Driver() Driver { return DriverFilesystem }

// Root is the absolute directory keys are resolved against.
func (s *FSStore) Root() string { return s.root }

// Path resolves key to a file path under the root.
func (s *FSStore) Path(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, data)
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%s: %w", key, common.ErrorNotFound)
	}
	if err != nil {
		return nil, "", err
	}
	return f, mime.TypeByExtension(filepath.Ext(p)), nil
}

func (s *FSStore) URL(_ context.Context, key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return localURL(k), nil
}
