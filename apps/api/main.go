package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"golang.org/x/sync/errgroup"

	echoapi "github.com/cwarwicker/elbp/apps/api/echo"
	"github.com/cwarwicker/elbp/apps/container"
	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
	"github.com/cwarwicker/elbp/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := container.NewLogger(conf, "API : ")
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := container.NewLogger(conf, "DB : ")

	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	if err = database.Migrate(db); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	c := container.New(conf, db, logger, container.NewEmailService(conf, logger))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(conf.WorkDir, logger)

	if conf.Plugins.Manifest != "" {
		regs, err := c.Plugins.InstallFromManifest(context.Background(), conf.Plugins.Manifest)
		if err != nil {
			logger.Fatal(fmt.Sprintf("applying plugin manifest: %v", err), err)
		}
		logger.Info(fmt.Sprintf("plugin manifest applied: %d plugins", len(regs)))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service and Scheduler

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		Validate:     c.Validate,
		Translator:   c.Translator,
		UserSvc:      c.Users,
		CourseSvc:    c.Courses,
		PluginMgr:    c.Plugins,
		CustomSvc:    c.Custom,
		LayoutSvc:    c.Layouts,
		SettingSvc:   c.Settings,
		DashboardSvc: c.Dashboard,
		TutorSvc:     c.Tutors,
		FileSvc:      c.Files,
		AlertSvc:     c.Alerts,
		MISSvc:       c.MIS,
		Resolver:     c.Resolver,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = c.Scheduler.Start(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("starting scheduler: %v", err), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)

	// =========================================================================
	// Shutdown

	select {
	case <-gctx.Done():
		err = g.Wait()
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
		if err = g.Wait(); err != nil {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}
	}

	cancel()
	if err = c.Scheduler.Shutdown(); err != nil {
		logger.Error(fmt.Sprintf("stopping scheduler: %v", err), err)
	}
}
