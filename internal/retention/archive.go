package retention

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// Archive writes every regular file of dir into a zip at out and returns the
// number of files added. out may not live inside dir.
func Archive(dir, out string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return 0, err
	}
	if rel, err := filepath.Rel(absDir, absOut); err == nil && filepath.IsLocal(rel) {
		return 0, fmt.Errorf("archive %s must not be inside %s", out, dir)
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	zw := zip.NewWriter(f)
	defer func() { err = multierr.Append(err, zw.Close()) }()

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
