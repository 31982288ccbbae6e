package main

import (
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	appfs "github.com/odinschool/odin/fs"
)

const migrationsDir = "migrations"

var gooseRunFunc = goose.Run // mockable

// migrate runs the goose command args[0] on the embedded migrations.
func (cli *commandLine) migrate(args []string) error {
	goose.SetBaseFS(appfs.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(cli.db.DriverName()); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	return gooseRunFunc(args[0], cli.db.DB, migrationsDir, args[1:]...)
}
