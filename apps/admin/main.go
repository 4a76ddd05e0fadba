package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/user"
	logsvc "github.com/trezcool/portal/services/logger"
	redisstore "github.com/trezcool/portal/storage/cache/redis"
	"github.com/trezcool/portal/storage/database"
	inmemdb "github.com/trezcool/portal/storage/database/inmem"
	sqlxrepos "github.com/trezcool/portal/storage/database/sqlx"
)

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	var (
		db        *sql.DB
		usrRepo   user.Repository
		blacklist auth.BlacklistRepository
		windows   auth.WindowRepository
	)

	// set up storage
	ctx := context.Background()
	if conf.Store == core.StoreMemory {
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		blacklist = inmemdb.NewBlacklistRepository(mem)
		windows = inmemdb.NewWindowRepository(mem)
	} else {
		sqlxDB, err := database.Open(ctx, conf)
		if err != nil {
			logger.Error("setting up database", err)
			return 1
		}
		defer sqlxDB.Close()
		db = sqlxDB.DB
		usrRepo = sqlxrepos.NewUserRepository(sqlxDB)
		blacklist = sqlxrepos.NewBlacklistRepository(sqlxDB)
		windows = sqlxrepos.NewWindowRepository(sqlxDB)

		if conf.Store == core.StoreRedis {
			var rdb *redis.Client
			if rdb, err = redisstore.Connect(ctx, conf); err != nil {
				logger.Error("setting up redis", err)
				return 1
			}
			defer rdb.Close()
			blacklist = redisstore.NewBlacklistRepository(rdb)
			windows = redisstore.NewWindowRepository(rdb)
		}
	}

	bl := auth.NewBlacklist(blacklist, logger)

	// start CLI
	cli := commandLine{
		db:         db,
		usrSvc:     user.NewService(usrRepo, logger),
		blacklist:  bl,
		sweeper:    auth.NewSweeper(conf, bl, windows, logger),
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
