package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
)

// Downloader copies stock record files from object storage to a local directory.
type Downloader struct {
	client  ObjectStorage
	destDir string
}

func NewDownloader(client ObjectStorage, destDir string) *Downloader {
	if destDir == "" {
		destDir = "./data/tmp/storage"
	}
	return &Downloader{client: client, destDir: destDir}
}

// Download fetches the CSV and XLSX objects under prefix, or only the object
// named by override, and returns the sorted local CSV paths. Workbooks are
// converted to CSV next to where they were downloaded.
func (d *Downloader) Download(ctx context.Context, prefix, override string) ([]string, error) {
	var keys []string

	if override != "" {
		keys = []string{resolveObjectKey(prefix, override)}
	} else {
		listPrefix := strings.TrimSpace(prefix)
		objects, err := d.client.ListObjects(ctx, listPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects for prefix %s: %w", listPrefix, err)
		}
		for _, obj := range objects {
			switch strings.ToLower(filepath.Ext(obj.Key)) {
			case ".csv", ".xlsx":
				keys = append(keys, obj.Key)
			}
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no CSV or XLSX files found for prefix %s", prefix)
	}

	localPaths := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		localPath := filepath.Join(d.destDir, objectRelativePath(prefix, key))
		if err := d.client.DownloadObject(ctx, key, localPath); err != nil {
			return nil, err
		}

		if strings.EqualFold(filepath.Ext(localPath), ".xlsx") {
			csvPath, err := convertToCSV(localPath)
			if err != nil {
				return nil, err
			}
			localPath = csvPath
		}
		localPaths = append(localPaths, localPath)
	}

	sort.Strings(localPaths)
	return localPaths, nil
}

func convertToCSV(xlsxPath string) (string, error) {
	in, err := os.Open(xlsxPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	csvPath := strings.TrimSuffix(xlsxPath, filepath.Ext(xlsxPath)) + ".csv"
	out, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file %s: %w", csvPath, err)
	}
	defer out.Close()

	if err := stock_health.XLSXToCSV(in, out); err != nil {
		return "", fmt.Errorf("failed to convert %s to csv: %w", xlsxPath, err)
	}

	_ = os.Remove(xlsxPath)
	return csvPath, nil
}

// ExportKey returns the object key for a recommendations export.
func ExportKey(prefix, name string) string {
	return resolveObjectKey(prefix, name)
}

func resolveObjectKey(prefix, override string) string {
	if override == "" {
		return strings.TrimSpace(prefix)
	}
	if prefix == "" {
		return strings.TrimPrefix(override, "/")
	}

	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	overrideTrimmed := strings.TrimPrefix(strings.TrimSpace(override), "/")

	if strings.HasPrefix(overrideTrimmed, prefixTrimmed+"/") {
		return overrideTrimmed
	}
	return fmt.Sprintf("%s/%s", prefixTrimmed, overrideTrimmed)
}

func objectRelativePath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	rel := strings.TrimPrefix(key, prefixTrimmed+"/")
	if rel == "" || rel == key {
		return filepath.Base(key)
	}
	return rel
}
