package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

var (
	ErrNotFound    = errors.Wrap(core.ErrNotFound, "file")
	ErrNoFilename  = errors.New("a file name is required")
	ErrFileTooBig  = errors.New("the file is too big")
	codeRegex      = regexp.MustCompile(`^[0-9a-f]{32}$`)
	uploadsDirName = "uploads"
)

type (
	Repository interface {
		CreateFile(ctx context.Context, f File, exec ...core.DBExecutor) (File, error)
		GetFile(ctx context.Context, code string, exec ...core.DBExecutor) (File, error)
		DeleteFile(ctx context.Context, code string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		dataRoot string
		maxSize  int64
		logger   core.Logger
	}
)

// NewService stores uploads under dataRoot. maxSize <= 0 means no limit.
func NewService(repo Repository, dataRoot string, maxSize int64, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.StringNotEmpty(dataRoot, "dataRoot"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{repo: repo, dataRoot: dataRoot, maxSize: maxSize, logger: logger}
}

// NewCode returns a random download code: a uuid in hex.
func NewCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Store writes r under <dataRoot>/uploads/<owner>/ with a random name and records its download code.
func (svc *Service) Store(ctx context.Context, ownerID int64, filename string, r io.Reader) (File, error) {
	filename = core.CleanString(filepath.Base(filepath.Clean("/" + filename)))
	if filename == "" || filename == "/" || filename == "." {
		return File{}, core.NewValidationError(ErrNoFilename, core.FieldError{Field: "file", Error: ErrNoFilename.Error()})
	}

	relDir := filepath.Join(uploadsDirName, strconv.FormatInt(ownerID, 10))
	if err := os.MkdirAll(filepath.Join(svc.dataRoot, relDir), 0o750); err != nil {
		return File{}, errors.Wrap(err, "creating upload directory")
	}
	code := NewCode()
	relPath := filepath.Join(relDir, NewCode()+strings.ToLower(filepath.Ext(filename)))
	absPath := filepath.Join(svc.dataRoot, relPath)

	size, err := svc.write(absPath, r)
	if err != nil {
		_ = os.Remove(absPath)
		return File{}, err
	}

	mime, err := mimetype.DetectFile(absPath)
	if err != nil {
		_ = os.Remove(absPath)
		return File{}, errors.Wrap(err, "detecting mime type")
	}

	f, err := svc.repo.CreateFile(ctx, File{
		Code:      code,
		OwnerID:   ownerID,
		Filename:  filename,
		Path:      relPath,
		MimeType:  mime.String(),
		Size:      size,
		CreatedAt: core.NowFunc(),
	})
	if err != nil {
		_ = os.Remove(absPath)
		return File{}, err
	}
	return f, nil
}

func (svc *Service) write(path string, r io.Reader) (int64, error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, errors.Wrap(err, "creating file")
	}
	defer out.Close()

	src := r
	if svc.maxSize > 0 {
		src = io.LimitReader(r, svc.maxSize+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return 0, errors.Wrap(err, "writing file")
	}
	if svc.maxSize > 0 && n > svc.maxSize {
		msg := fmt.Sprintf("%s (max %d bytes)", ErrFileTooBig, svc.maxSize)
		return 0, core.NewValidationError(ErrFileTooBig, core.FieldError{Field: "file", Error: msg})
	}
	return n, errors.Wrap(out.Sync(), "syncing file")
}

// Resolve returns the record behind a download code.
func (svc *Service) Resolve(ctx context.Context, code string) (File, error) {
	code = core.CleanString(code, true /* lower */)
	if !codeRegex.MatchString(code) {
		return File{}, ErrNotFound
	}
	return svc.repo.GetFile(ctx, code)
}

// Open resolves code and opens the file for reading. The caller closes it.
func (svc *Service) Open(ctx context.Context, code string) (File, io.ReadSeekCloser, error) {
	f, err := svc.Resolve(ctx, code)
	if err != nil {
		return File{}, nil, err
	}
	rd, err := os.Open(filepath.Join(svc.dataRoot, f.Path))
	if os.IsNotExist(err) {
		svc.logger.Warn(fmt.Sprintf("file %s is missing from disk", f.Code))
		return File{}, nil, ErrNotFound
	}
	if err != nil {
		return File{}, nil, errors.Wrap(err, "opening file")
	}
	return f, rd, nil
}

// Delete removes the record then the file on disk.
func (svc *Service) Delete(ctx context.Context, code string) error {
	f, err := svc.Resolve(ctx, code)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteFile(ctx, f.Code); err != nil {
		return err
	}
	if err = os.Remove(filepath.Join(svc.dataRoot, f.Path)); err != nil && !os.IsNotExist(err) {
		svc.logger.Warn(fmt.Sprintf("removing file %s: %v", f.Code, err), err)
	}
	return nil
}
