package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/file"
)

type fileRow struct {
	ID        int64  `db:"id"`
	Code      string `db:"code"`
	OwnerID   int64  `db:"owner_id"`
	Filename  string `db:"filename"`
	Path      string `db:"path"`
	MimeType  string `db:"mime_type"`
	Size      int64  `db:"size"`
	CreatedAt int64  `db:"created_at"`
}

type fileRepository struct {
	baseRepo
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db core.DB) *fileRepository {
	return &fileRepository{baseRepo{db: db}}
}

func (repo fileRepository) CreateFile(ctx context.Context, f file.File, exec ...core.DBExecutor) (file.File, error) {
	id, err := insert(ctx, repo.getExec(exec),
		"INSERT INTO file_codes (code, owner_id, filename, path, mime_type, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		f.Code, f.OwnerID, f.Filename, f.Path, f.MimeType, f.Size, core.ToUnix(f.CreatedAt))
	if err != nil {
		return f, errors.Wrap(err, "inserting file code")
	}
	f.ID = id
	return f, nil
}

func (repo fileRepository) GetFile(ctx context.Context, code string, exec ...core.DBExecutor) (file.File, error) {
	db := repo.getExec(exec)
	var row fileRow
	q := db.Rebind("SELECT id, code, owner_id, filename, path, mime_type, size, created_at FROM file_codes WHERE code = ?")
	if err := db.GetContext(ctx, &row, q, code); err != nil {
		return file.File{}, trapNoRowsErr(err, file.ErrNotFound, "selecting file code")
	}
	return file.File{
		ID:        row.ID,
		Code:      row.Code,
		OwnerID:   row.OwnerID,
		Filename:  row.Filename,
		Path:      row.Path,
		MimeType:  row.MimeType,
		Size:      row.Size,
		CreatedAt: core.FromUnix(row.CreatedAt),
	}, nil
}

func (repo fileRepository) DeleteFile(ctx context.Context, code string, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM file_codes WHERE code = ?", code)
	if err != nil {
		return errors.Wrap(err, "deleting file code")
	}
	if n == 0 {
		return file.ErrNotFound
	}
	return nil
}
