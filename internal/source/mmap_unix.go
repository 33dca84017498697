//go:build unix

package source

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &Input{Path: path}, nil
	}
	if size < 0 || int64(int(size)) != size {
		return nil, errors.New("file too large to map")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Pipes and some filesystems cannot be mapped.
		return readWhole(path)
	}

	// Workers scan their ranges front to back.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return &Input{
		Data:    data,
		Path:    path,
		Mapped:  true,
		release: func() error { return unix.Munmap(data) },
	}, nil
}
