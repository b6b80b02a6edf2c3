package mis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

var (
	ErrNotFound  = errors.Wrap(core.ErrNotFound, "mis connection")
	ErrNameTaken = errors.New("a connection with this name already exists")
	ErrDisabled  = errors.New("this connection is disabled")
)

var pingTimeout = 10 * time.Second // mockable

type (
	Repository interface {
		NameTaken(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error)
		CreateConnection(ctx context.Context, conn Connection, exec ...core.DBExecutor) (Connection, error)
		GetConnection(ctx context.Context, id int64, exec ...core.DBExecutor) (Connection, error)
		ListConnections(ctx context.Context, exec ...core.DBExecutor) ([]Connection, error)
		SetEnabled(ctx context.Context, id int64, enabled bool, exec ...core.DBExecutor) error
		DeleteConnection(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	Service struct {
		repo       Repository
		connectors *Connectors
		logger     core.Logger
	}
)

func NewService(repo Repository, connectors *Connectors, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(connectors, "connectors"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{repo: repo, connectors: connectors, logger: logger}
}

func (svc *Service) Drivers() []string {
	return svc.connectors.Drivers()
}

func (svc *Service) Create(ctx context.Context, validate *validator.Validate, nc NewConnection) (Connection, error) {
	nc.Name = core.CleanString(nc.Name)
	nc.Driver = core.CleanString(nc.Driver, true /* lower */)
	nc.DSN = core.CleanString(nc.DSN)
	if err := validate.Struct(nc); err != nil {
		return Connection{}, err
	}
	if _, ok := svc.connectors.Get(nc.Driver); !ok {
		err := unknownDriver(nc.Driver)
		return Connection{}, core.NewValidationError(err, core.FieldError{Field: "driver", Error: err.Error()})
	}
	taken, err := svc.repo.NameTaken(ctx, nc.Name)
	if err != nil {
		return Connection{}, err
	}
	if taken {
		return Connection{}, core.NewValidationError(ErrNameTaken, core.FieldError{Field: "name", Error: ErrNameTaken.Error()})
	}
	return svc.repo.CreateConnection(ctx, Connection{
		Name:      nc.Name,
		Driver:    nc.Driver,
		DSN:       nc.DSN,
		Enabled:   nc.Enabled,
		CreatedAt: core.NowFunc(),
	})
}

func (svc *Service) Get(ctx context.Context, id int64) (Connection, error) {
	return svc.repo.GetConnection(ctx, id)
}

func (svc *Service) List(ctx context.Context) ([]Connection, error) {
	return svc.repo.ListConnections(ctx)
}

func (svc *Service) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return svc.repo.SetEnabled(ctx, id, enabled)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	return svc.repo.DeleteConnection(ctx, id)
}

// connect opens the connection and waits for it to answer.
func (svc *Service) connect(ctx context.Context, id int64) (Connector, *sqlx.DB, error) {
	conn, err := svc.repo.GetConnection(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !conn.Enabled {
		return nil, nil, ErrDisabled
	}
	connector, ok := svc.connectors.Get(conn.Driver)
	if !ok {
		return nil, nil, unknownDriver(conn.Driver)
	}
	db, err := connector.Open(conn.DSN)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", conn.Name)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = pingTimeout
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			svc.logger.Debug(fmt.Sprintf("mis %s: ping attempt %d: %v", conn.Name, attempt, err))
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrapf(err, "connecting to %s", conn.Name)
	}
	return connector, db, nil
}

// Test reports whether the connection answers.
func (svc *Service) Test(ctx context.Context, id int64) error {
	_, db, err := svc.connect(ctx, id)
	if err != nil {
		return err
	}
	return db.Close()
}

// Environment lists the tables and columns of the external database. It never writes.
func (svc *Service) Environment(ctx context.Context, id int64) ([]Table, error) {
	connector, db, err := svc.connect(ctx, id)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return connector.Tables(ctx, db)
}
