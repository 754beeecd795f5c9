package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ZipFiles compresses the named files from srcDir into a new zip at dest and
// returns the archive size. Entries are stored flat under their base names.
// A failed run removes whatever was written at dest.
func ZipFiles(dest, srcDir string, names []string) (size int64, err error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err = addFile(zw, filepath.Join(srcDir, name), name); err != nil {
			_ = zw.Close()
			return 0, err
		}
	}
	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	if err = out.Sync(); err != nil {
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	info, err := out.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	if err = out.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	return info.Size(), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close() //nolint:errcheck

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}
