package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
	emailsvc "github.com/odinschool/odin/services/email"
	logsvc "github.com/odinschool/odin/services/logger"
	"github.com/odinschool/odin/storage/database"
	"github.com/odinschool/odin/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(false)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db,
		usrSvc:   user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf),
		validate: validate,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("\nerror: " + describe(err, translator))
		}
		os.Exit(1)
	}
}

// describe renders err for a terminal, one line per invalid field.
func describe(err error, translator ut.Translator) string {
	var lines []string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range e {
			lines = append(lines, fe.Field()+": "+fe.Translate(translator))
		}
	case *core.ValidationError:
		for _, fe := range e.Fields {
			lines = append(lines, fe.Field+": "+fe.Error)
		}
	}
	if len(lines) == 0 {
		return err.Error()
	}
	return strings.Join(lines, "\n")
}
