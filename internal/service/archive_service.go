package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/plan-export-api/pkg/archive"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
)

type stagingArea interface {
	Dir() string
	List() ([]string, error)
	Delete(filename string) error
}

type outputArea interface {
	Path(filename string) string
}

// ArchiveResult describes an assembled archive.
type ArchiveResult struct {
	Filename string
	Path     string
	Size     int64
	Files    []string
}

// ArchiveService compresses the staged documents of a batch into one zip.
type ArchiveService struct {
	staging stagingArea
	output  outputArea
	logger  *zap.Logger
}

// NewArchiveService constructs the assembler.
func NewArchiveService(staging stagingArea, output outputArea, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{staging: staging, output: output, logger: logger}
}

// Assemble zips every staged document into the output area under
// archiveName and then empties the staging area. When compression fails the
// staged files are left in place and no archive remains.
func (s *ArchiveService) Assemble(ctx context.Context, archiveName string) (*ArchiveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrArchive, err, "")
	}
	names, err := s.staging.List()
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrArchive, err, "failed to read staging area")
	}
	if len(names) == 0 {
		return nil, appErrors.WrapAs(appErrors.ErrArchive, fmt.Errorf("no staged documents"), "staging area is empty")
	}

	start := time.Now()
	dest := s.output.Path(archiveName)
	size, err := archive.ZipFiles(dest, s.staging.Dir(), names)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrArchive, err, "failed to compress staged documents")
	}

	// The archive is complete at this point. Files that cannot be removed
	// are logged and swept by the next class run.
	var leftover []string
	for _, name := range names {
		if err := s.staging.Delete(name); err != nil {
			leftover = append(leftover, name)
			s.logger.Sugar().Warnw("staged document not removed",
				"archive", archiveName,
				"file", name,
				"error", err,
			)
		}
	}

	s.logger.Sugar().Infow("archive assembled",
		"archive", archiveName,
		"files", len(names),
		"leftover", len(leftover),
		"bytes", size,
		"duration", time.Since(start),
	)
	return &ArchiveResult{Filename: archiveName, Path: dest, Size: size, Files: names}, nil
}
