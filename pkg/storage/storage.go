package storage

import (
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("Object not found")

// Storage is an abstraction of a blob store that holds our artifacts:
// ground truth caches, result files, and evaluation index files.
type Storage interface {
	// When finished, you must close the WriteCloser.
	// The object is only guaranteed to exist once Close returns nil.
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader.
	// Returns an error wrapping ErrNotFound if the object does not exist.
	ReadFile(name string) (*File, error)

	// Deleting an object that does not exist is not an error
	DeleteFile(name string) error
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

func WriteFile(s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}
