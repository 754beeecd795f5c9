package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/plan-export-api/internal/models"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/export"
)

const (
	filePrefix      = "plan_export_"
	allTermsSegment = "allTerms_"
	maxNameRunes    = 60
)

type documentSynthesizer interface {
	Synthesize(agg models.StudentAggregate, scope models.ClassScope) export.Document
}

type atomicWriter interface {
	WriteAtomic(filename string, write func(io.Writer) error) (string, error)
}

// DocumentJob is one unit of export work: a student's records, the class
// scope to render and the staging filename to write.
type DocumentJob struct {
	Aggregate models.StudentAggregate
	Scope     models.ClassScope
	Filename  string
}

// DoneFunc receives the outcome of a DocumentJob. err is nil on success.
type DoneFunc func(err error, filename string)

// ExportService renders documents and writes them to the staging area.
type ExportService struct {
	docs     documentSynthesizer
	renderer export.Renderer
	staging  atomicWriter
	logger   *zap.Logger
}

// NewExportService constructs the job runner.
func NewExportService(docs documentSynthesizer, renderer export.Renderer, staging atomicWriter, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{docs: docs, renderer: renderer, staging: staging, logger: logger}
}

// Extension returns the file extension of generated documents.
func (s *ExportService) Extension() string {
	return s.renderer.Extension()
}

// NewJob prepares a DocumentJob with a fresh run-unique filename.
func (s *ExportService) NewJob(agg models.StudentAggregate, scope models.ClassScope) DocumentJob {
	return DocumentJob{
		Aggregate: agg,
		Scope:     scope,
		Filename:  DocumentFilename(agg.Profile, scope, s.renderer.Extension()),
	}
}

// Run synthesizes, renders and writes one document, then reports through
// onDone exactly once. The file only becomes visible in staging when the
// write completed; a cancelled ctx aborts the write.
func (s *ExportService) Run(ctx context.Context, job DocumentJob, onDone DoneFunc) {
	var once sync.Once
	done := func(err error, filename string) {
		once.Do(func() { onDone(err, filename) })
	}

	if err := ctx.Err(); err != nil {
		done(documentError(job, err), job.Filename)
		return
	}

	start := time.Now()
	doc := s.docs.Synthesize(job.Aggregate, job.Scope)
	_, err := s.staging.WriteAtomic(job.Filename, func(w io.Writer) error {
		if err := s.renderer.Render(&ctxWriter{ctx: ctx, w: w}, doc); err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		s.logger.Sugar().Warnw("document export failed",
			"school_id", job.Aggregate.Profile.SchoolID,
			"file", job.Filename,
			"error", err,
		)
		done(documentError(job, err), job.Filename)
		return
	}
	s.logger.Sugar().Debugw("document exported",
		"school_id", job.Aggregate.Profile.SchoolID,
		"file", job.Filename,
		"sections", len(doc.Body),
		"duration", time.Since(start),
	)
	done(nil, job.Filename)
}

func documentError(job DocumentJob, err error) error {
	return appErrors.WrapAs(appErrors.ErrDocumentGeneration, err,
		fmt.Sprintf("failed to export document for student %s", job.Aggregate.Profile.SchoolID))
}

// ctxWriter fails writes once ctx is done so a timed out render never
// reaches the rename step.
type ctxWriter struct {
	ctx context.Context
	w   io.Writer
}

func (c *ctxWriter) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}

// DocumentFilename builds plan_export_<schoolId><name>_[allTerms_]<random>.<ext>.
func DocumentFilename(profile models.StudentProfile, scope models.ClassScope, ext string) string {
	var b strings.Builder
	b.WriteString(filePrefix)
	b.WriteString(sanitizeFilename(profile.SchoolID + profile.Name))
	b.WriteString("_")
	if scope.IsAll() {
		b.WriteString(allTermsSegment)
	}
	b.WriteString(randomSuffix())
	b.WriteString(".")
	b.WriteString(ext)
	return b.String()
}

// ArchiveFilename builds plan_export_<classId>_<random>.zip.
func ArchiveFilename(classID string) string {
	return filePrefix + sanitizeFilename(classID) + "_" + randomSuffix() + ".zip"
}

// sanitizeFilename keeps letters (CJK included), digits, dash and dot.
func sanitizeFilename(raw string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(raw) {
		if count >= maxNameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '_':
			b.WriteRune('_')
		default:
			continue
		}
		count++
	}
	result := strings.Trim(b.String(), ".")
	if result == "" {
		return "na"
	}
	return result
}

func randomSuffix() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
