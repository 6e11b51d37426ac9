package bundle

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
)

// zipDir archives the listed files (relative to dir) into dst.
func zipDir(dir, dst string, files []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	for _, rel := range files {
		if err := addToZip(zw, dir, rel); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func addToZip(zw *zip.Writer, dir, rel string) error {
	src, err := os.Open(filepath.Join(dir, rel))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	w, err := zw.Create(filepath.ToSlash(rel))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
