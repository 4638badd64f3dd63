package datastore

import (
	"os"
	"path/filepath"

	"github.com/borgmon/contact-manager/pkg/models"
)

// WriteFileAtomic replaces path with data. The bytes go to a temporary file
// in the same directory which is synced and renamed over path, so readers
// see either the old contents or the new ones. The directory must exist.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return models.WrapError(models.ErrIO, err, "create temporary file for %s", path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return models.WrapError(models.ErrIO, err, "write %s", tmpName)
	}
	if err := tmp.Chmod(perm); err != nil {
		return models.WrapError(models.ErrIO, err, "chmod %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return models.WrapError(models.ErrIO, err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return models.WrapError(models.ErrIO, err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return models.WrapError(models.ErrIO, err, "replace %s", path)
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return models.WrapError(models.ErrIO, err, "open %s", dir)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return models.WrapError(models.ErrIO, err, "sync %s", dir)
	}
	return nil
}
