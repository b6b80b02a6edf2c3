package main

import (
	"fmt"
	"os"

	"github.com/cwarwicker/elbp/apps/container"
	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger := container.NewLogger(conf, "ADMIN : ")
	logger.Enable(!conf.Debug)
	defer logger.Close()

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	cli := &commandLine{
		c:  container.New(conf, db, logger, container.NewEmailService(conf, logger)),
		db: db,
	}
	if err = cli.rootCommand().Execute(); err != nil {
		failure(os.Stderr, err)
		_ = db.Close()
		os.Exit(1)
	}
}
