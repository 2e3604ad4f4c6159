package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
)

// FilesystemBackend stores instances as plain files under BaseDir using
// the base/<study>/<series>/<sop>.dcm layout spec.md §6 documents.
type FilesystemBackend struct {
	BaseDir string
}

// NewFilesystemBackend creates a backend rooted at baseDir, creating it
// if necessary.
func NewFilesystemBackend(baseDir string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, dimseerr.NewStorage("Io", err)
	}
	return &FilesystemBackend{BaseDir: baseDir}, nil
}

func (f *FilesystemBackend) fullPath(key Key) string {
	return filepath.Join(f.BaseDir, filepath.FromSlash(key.Path()))
}

// Put writes data to the key's path, creating parent directories. Writes
// go to a temp file first and are renamed into place so a concurrent Get
// never observes a partial file. It returns the file:// URI of the path
// actually written.
func (f *FilesystemBackend) Put(ctx context.Context, key Key, data []byte) (string, error) {
	path := f.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", dimseerr.NewStorage("Io", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", dimseerr.NewStorage("Io", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", dimseerr.NewStorage("Io", err)
	}
	return "file://" + filepath.ToSlash(path), nil
}

func (f *FilesystemBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := os.ReadFile(f.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dimseerr.NewStorage("NotFound", err)
		}
		return nil, dimseerr.NewStorage("Io", err)
	}
	return data, nil
}

func (f *FilesystemBackend) List(ctx context.Context, studyInstanceUID string) ([]Key, error) {
	studyDir := filepath.Join(f.BaseDir, studyInstanceUID)
	var keys []Key
	seriesEntries, err := os.ReadDir(studyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dimseerr.NewStorage("Io", err)
	}
	for _, series := range seriesEntries {
		if !series.IsDir() {
			continue
		}
		instanceEntries, err := os.ReadDir(filepath.Join(studyDir, series.Name()))
		if err != nil {
			return nil, dimseerr.NewStorage("Io", err)
		}
		for _, inst := range instanceEntries {
			if inst.IsDir() {
				continue
			}
			name := inst.Name()
			sopInstanceUID := name[:len(name)-len(filepath.Ext(name))]
			keys = append(keys, Key{StudyInstanceUID: studyInstanceUID, SeriesInstanceUID: series.Name(), SOPInstanceUID: sopInstanceUID})
		}
	}
	return keys, nil
}
