package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/course"
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
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc      *user.Service
		CourseSvc    *course.Service
		PluginMgr    *plugin.Manager
		CustomSvc    *customplugin.Service
		LayoutSvc    *layout.Service
		SettingSvc   *setting.Service
		DashboardSvc *dashboard.Service
		TutorSvc     *tutor.Service
		FileSvc      *file.Service
		AlertSvc     *alert.Service
		MISSvc       *mis.Service
		Resolver     *permission.Resolver
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "deps.Conf"),
		vala.IsNotNil(deps.Logger, "deps.Logger"),
		vala.IsNotNil(deps.Validate, "deps.Validate"),
		vala.IsNotNil(deps.Translator, "deps.Translator"),
		vala.IsNotNil(deps.UserSvc, "deps.UserSvc"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	users := s.deps.UserSvc

	registerUserAPI(v1, jwt, s.auth, users, s.deps.Validate)
	registerCourseAPI(v1, jwt, users, s.deps.CourseSvc, s.deps.Validate)
	plugins := registerPluginAPI(v1, jwt, users, s.deps.PluginMgr)
	custom := registerCustomPluginAPI(v1, jwt, users, s.deps.CustomSvc, s.deps.Resolver, s.deps.Validate)
	layouts := registerLayoutAPI(v1, jwt, users, s.deps.LayoutSvc, s.deps.Validate)
	settings := registerSettingAPI(v1, jwt, users, s.deps.SettingSvc)
	registerDashboardAPI(v1, jwt, users, s.deps.DashboardSvc, s.deps.Validate)
	registerTutorAPI(v1, jwt, users, s.deps.TutorSvc, s.deps.Resolver, s.deps.Validate)
	registerFileAPI(v1, jwt, users, s.deps.FileSvc)
	alerts := registerAlertAPI(v1, jwt, users, s.deps.AlertSvc, s.deps.Resolver, s.deps.Validate)
	misAPI := registerMISAPI(v1, jwt, users, s.deps.MISSvc, s.deps.Validate)

	registerConfigAPI(v1, jwt, users, configViews{
		"plugins":  plugins,
		"custom":   custom,
		"layouts":  layouts,
		"settings": settings,
		"alerts":   alerts,
		"mis":      misAPI,
	})
}

// Start listens on the configured address until Shutdown or Close is called.
func (s *Server) Start() error {
	addr := s.deps.Conf.Server.Address()
	s.deps.Logger.Info("API listening on " + addr)
	if err := s.app.Start(addr); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "starting server")
	}
	return nil
}

// ShutdownSignal fires on SIGINT/SIGTERM, or when a handler hits a shutdown error.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

// GenerateToken signs a JWT for usr.
func (s *Server) GenerateToken(usr user.User) (string, error) {
	return s.auth.generateToken(s.auth.userClaims(usr))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the "+s.deps.Conf.AppName+" API!")
}
