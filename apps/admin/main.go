package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
	"github.com/trezcool/kalamu/storage/database"
	sqlxrepos "github.com/trezcool/kalamu/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(context.Background(), conf))
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(database.Ping(context.Background(), db))

	// start CLI
	code := 0
	if err := newCommandLine(db, conf).run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		code = 1
	}
	_ = db.Close()
	os.Exit(code)
}

func newCommandLine(db *sqlx.DB, conf *core.Config) *commandLine {
	usrRepo := sqlxrepos.NewUserRepository(db)
	return &commandLine{
		db:       db,
		usrRepo:  usrRepo,
		usrSvc:   user.NewService(usrRepo, nil, conf), // no mail is sent from here
		quotaSvc: quota.NewService(sqlxrepos.NewUsageRepository(db), nil),
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
