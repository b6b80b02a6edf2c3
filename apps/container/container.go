// Package container builds the application services shared by the API server and the admin CLI.
package container

import (
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/kat-co/vala"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/course"
	"github.com/cwarwicker/elbp/core/cron"
	"github.com/cwarwicker/elbp/core/customplugin"
	"github.com/cwarwicker/elbp/core/dashboard"
	"github.com/cwarwicker/elbp/core/file"
	"github.com/cwarwicker/elbp/core/layout"
	"github.com/cwarwicker/elbp/core/mis"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
	"github.com/cwarwicker/elbp/core/tutor"
	"github.com/cwarwicker/elbp/core/user"
	"github.com/cwarwicker/elbp/plugins"
	emailsvc "github.com/cwarwicker/elbp/services/email"
	logsvc "github.com/cwarwicker/elbp/services/logger"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
)

// Container holds every service of the application, wired over one database.
type Container struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *sqlx.DB
	Mailer     core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator

	Users     *user.Service
	Courses   *course.Service
	Settings  *setting.Service
	Plugins   *plugin.Manager
	Custom    *customplugin.Service
	Layouts   *layout.Service
	Dashboard *dashboard.Service
	Tutors    *tutor.Service
	Files     *file.Service
	Alerts    *alert.Service
	MIS       *mis.Service
	Resolver  *permission.Resolver
	Scheduler *cron.Scheduler
}

// NewLogger returns the rollbar backed logger writing to stdout with prefix.
func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

// NewEmailService prints emails in debug mode and sends them through Sendgrid otherwise.
func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.TestMode {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// New wires the services over db. The built-in plugins are registered, and their settings and
// alert evaluators declared, but nothing is installed.
func New(conf *core.Config, db *sqlx.DB, logger core.Logger, mailer core.EmailService) *Container {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(mailer, "mailer"),
	).CheckAndPanic()

	c := &Container{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Mailer:     mailer,
		Validate:   validator.New(),
		Translator: core.NewTranslator(),
	}
	core.InitValidators(c.Validate, c.Translator)
	user.InitValidators(c.Validate, c.Translator)
	customplugin.InitValidators(c.Validate, c.Translator)

	userRepo := sqlxrepos.NewUserRepository(db)
	pluginRepo := sqlxrepos.NewPluginRepository(db)

	c.Users = user.NewService(userRepo)
	c.Courses = course.NewService(sqlxrepos.NewCourseRepository(db))
	c.Settings = setting.NewService(sqlxrepos.NewSettingRepository(db), setting.DefaultSchema())
	c.Resolver = permission.NewResolver(sqlxrepos.NewPermissionSource(db))

	registry := plugin.NewRegistry()
	plugins.RegisterBuiltins(registry)
	c.Plugins = plugin.NewManager(pluginRepo, registry, plugin.Deps{DB: db, Logger: logger, Settings: c.Settings})
	c.Custom = customplugin.NewService(sqlxrepos.NewCustomPluginRepository(db), db, pluginRepo, registry)
	c.Plugins.SetCustomSource(c.Custom)

	c.Layouts = layout.NewService(sqlxrepos.NewLayoutRepository(db), db)
	c.Dashboard = dashboard.NewService(c.Users, c.Resolver, c.Plugins, c.Layouts, c.Settings, logger)
	c.Tutors = tutor.NewService(sqlxrepos.NewTutorRepository(db), c.Users)
	c.Files = file.NewService(sqlxrepos.NewFileRepository(db), conf.DataRoot, conf.MaxUploadSize, logger)
	c.Alerts = alert.NewService(sqlxrepos.NewAlertRepository(db), db, c.Users, mailer, conf.Alerts, logger)
	c.MIS = mis.NewService(sqlxrepos.NewMISRepository(db), mis.DefaultConnectors(), logger)

	c.Plugins.Bootstrap(c.Alerts)
	c.Scheduler = cron.NewScheduler(c.Alerts, c.Plugins, c.Settings, conf, logger)
	return c
}
