package drive

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// RecordIngester stores the stock records of one CSV or XLSX file.
type RecordIngester interface {
	IngestRecords(ctx context.Context, filename string, r io.Reader) (int, error)
}

type IngestService struct {
	files    FileSource
	ingester RecordIngester
}

func NewIngestService(files FileSource, ingester RecordIngester) *IngestService {
	return &IngestService{
		files:    files,
		ingester: ingester,
	}
}

// IngestFile streams a Drive file into the record store and returns the
// number of records written. An invalid file stores nothing.
func (s *IngestService) IngestFile(ctx context.Context, fileID string) (int, error) {
	meta, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		return 0, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.files.DownloadFile(ctx, fileID, pw))
	}()
	defer pr.Close()

	n, err := s.ingester.IngestRecords(ctx, meta.Name, pr)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", meta.Name, err)
	}

	log.Info().Str("file_id", fileID).Str("file", meta.Name).Int("rows", n).Msg("drive: file ingested")
	return n, nil
}
