package layout

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

var (
	ErrNotFound      = errors.Wrap(core.ErrNotFound, "layout")
	ErrDeleteDefault = errors.New("the default layout cannot be deleted")
	ErrDuplicateID   = errors.New("a layout is submitted more than once")
)

type (
	Repository interface {
		// ListLayouts returns every layout by id, with its groups by ordernum.
		ListLayouts(ctx context.Context, exec ...core.DBExecutor) ([]Layout, error)
		GetLayout(ctx context.Context, id int64, exec ...core.DBExecutor) (Layout, error)
		GetDefaultLayout(ctx context.Context, exec ...core.DBExecutor) (Layout, error)
		CreateLayout(ctx context.Context, l Layout, exec ...core.DBExecutor) (Layout, error)
		// UpdateLayout also replaces the layout's groups.
		UpdateLayout(ctx context.Context, l Layout, exec ...core.DBExecutor) (Layout, error)
		DeleteLayout(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	Service struct {
		repo Repository
		db   core.DB
	}
)

func NewService(repo Repository, db core.DB) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(db, "db"),
	).CheckAndPanic()
	return &Service{repo: repo, db: db}
}

// SaveAll replaces the set of layouts with forms. Existing layouts missing from forms are deleted.
// Afterwards exactly one layout is the default, unless there are none.
func (svc *Service) SaveAll(ctx context.Context, validate *validator.Validate, forms []Form) ([]Layout, error) {
	for i := range forms {
		forms[i].Name = core.CleanString(forms[i].Name)
		for j := range forms[i].Groups {
			forms[i].Groups[j].Name = core.CleanString(forms[i].Groups[j].Name)
		}
		if err := validate.Struct(forms[i]); err != nil {
			return nil, err
		}
	}
	seen := make(map[int64]bool, len(forms))
	for _, f := range forms {
		if f.ID == 0 {
			continue
		}
		if seen[f.ID] {
			return nil, core.NewValidationError(ErrDuplicateID, core.FieldError{Field: "id", Error: ErrDuplicateID.Error()})
		}
		seen[f.ID] = true
	}
	def := defaultIndex(forms)

	var saved []Layout
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		existing, err := svc.repo.ListLayouts(ctx, tx)
		if err != nil {
			return err
		}
		for _, l := range existing {
			if !seen[l.ID] {
				if err = svc.repo.DeleteLayout(ctx, l.ID, tx); err != nil {
					return err
				}
			}
		}

		saved = make([]Layout, 0, len(forms))
		for i, f := range forms {
			l := fromForm(f, i == def)
			if f.ID == 0 {
				l, err = svc.repo.CreateLayout(ctx, l, tx)
			} else {
				l, err = svc.repo.UpdateLayout(ctx, l, tx)
			}
			if err != nil {
				return err
			}
			saved = append(saved, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func fromForm(f Form, isDefault bool) Layout {
	l := Layout{
		ID:        f.ID,
		Name:      f.Name,
		Enabled:   f.Enabled,
		IsDefault: isDefault,
		Groups:    make([]Group, 0, len(f.Groups)),
	}
	for i, gf := range f.Groups {
		l.Groups = append(l.Groups, Group{
			LayoutID: f.ID,
			Name:     gf.Name,
			Ordernum: i + 1,
			Plugins:  gf.Plugins,
		})
	}
	return l
}

func (svc *Service) Default(ctx context.Context) (Layout, error) {
	return svc.repo.GetDefaultLayout(ctx)
}

func (svc *Service) Get(ctx context.Context, id int64) (Layout, error) {
	return svc.repo.GetLayout(ctx, id)
}

func (svc *Service) List(ctx context.Context) ([]Layout, error) {
	return svc.repo.ListLayouts(ctx)
}

// ForUser returns the enabled layout with the given id, falling back to the default layout.
func (svc *Service) ForUser(ctx context.Context, id int64) (Layout, error) {
	if id > 0 {
		l, err := svc.repo.GetLayout(ctx, id)
		if err == nil && l.Enabled {
			return l, nil
		}
		if err != nil && !core.IsNotFound(err) {
			return Layout{}, err
		}
	}
	return svc.repo.GetDefaultLayout(ctx)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	return core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		l, err := svc.repo.GetLayout(ctx, id, tx)
		if err != nil {
			return err
		}
		if l.IsDefault {
			return core.NewValidationError(ErrDeleteDefault, core.FieldError{Field: "id", Error: ErrDeleteDefault.Error()})
		}
		return svc.repo.DeleteLayout(ctx, id, tx)
	})
}
