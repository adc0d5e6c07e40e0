package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
)

// DownloadOptions controls how files are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
}

// Downloader pulls stock record files out of a Drive folder.
type Downloader struct {
	files FileSource
}

func NewDownloader(files FileSource) *Downloader {
	return &Downloader{files: files}
}

// DownloadFolderCSV downloads the CSV and XLSX files of a Drive folder into
// DownloadDir and returns the local CSV paths. Workbooks are converted to CSV
// on the fly, first sheet only.
func (d *Downloader) DownloadFolderCSV(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.files.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}

		csvName := strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name)) + ".csv"
		localPath := filepath.Join(opts.DownloadDir, csvName)
		if err := d.downloadAsCSV(ctx, f, ext, localPath); err != nil {
			return nil, err
		}
		localPaths = append(localPaths, localPath)
	}

	return localPaths, nil
}

func (d *Downloader) downloadAsCSV(ctx context.Context, f *File, ext, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer out.Close()

	if ext == ".csv" {
		if err := d.files.DownloadFile(ctx, f.ID, out); err != nil {
			return fmt.Errorf("failed to download %s: %w", f.Name, err)
		}
		return nil
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(d.files.DownloadFile(ctx, f.ID, pw))
	}()
	defer pr.Close()

	if err := stock_health.XLSXToCSV(pr, out); err != nil {
		return fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
	}
	return nil
}
