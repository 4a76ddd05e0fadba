package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/portal/apps/api/echo"
	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/grade"
	"github.com/trezcool/portal/core/user"
	logsvc "github.com/trezcool/portal/services/logger"
	redisstore "github.com/trezcool/portal/storage/cache/redis"
	"github.com/trezcool/portal/storage/database"
	inmemdb "github.com/trezcool/portal/storage/database/inmem"
	sqlxrepos "github.com/trezcool/portal/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Resources are the connections to release on shutdown.
type Resources struct {
	closers []func() error
}

func (r *Resources) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Repositories are picked by conf.Store: postgres for everything, postgres & redis for the auth state,
// or memory only.
type Repositories struct {
	dig.Out
	Users     user.Repository
	Marks     grade.Repository
	Blacklist auth.BlacklistRepository
	Windows   auth.WindowRepository
	Resources *Resources
}

func newLogger(conf *core.Config) *logsvc.RollbarLogger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) (Repositories, error) {
	res := new(Resources)
	switch conf.Store {
	case core.StoreMemory:
		loggerParam.Logger.Warn("using in-memory storage: nothing will be persisted")
		db := inmemdb.Open()
		return Repositories{
			Users:     inmemdb.NewUserRepository(db),
			Marks:     inmemdb.NewMarkRepository(db),
			Blacklist: inmemdb.NewBlacklistRepository(db),
			Windows:   inmemdb.NewWindowRepository(db),
			Resources: res,
		}, nil
	case core.StorePostgres, core.StoreRedis:
	default:
		return Repositories{}, errors.Errorf("unknown store %q", conf.Store)
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*10)
	defer cancel()

	db, err := database.Open(ctx, conf)
	if err != nil {
		return Repositories{}, errors.Wrap(err, "setting up database")
	}
	res.closers = append(res.closers, db.Close)
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = res.Close()
		return Repositories{}, errors.Wrap(err, "migrating database")
	}

	repos := Repositories{
		Users:     sqlxrepos.NewUserRepository(db),
		Marks:     sqlxrepos.NewMarkRepository(db),
		Blacklist: sqlxrepos.NewBlacklistRepository(db),
		Windows:   sqlxrepos.NewWindowRepository(db),
		Resources: res,
	}

	if conf.Store == core.StoreRedis {
		rdb, err := redisstore.Connect(ctx, conf)
		if err != nil {
			_ = res.Close()
			return Repositories{}, errors.Wrap(err, "setting up redis")
		}
		res.closers = append(res.closers, rdb.Close)
		repos.Blacklist = redisstore.NewBlacklistRepository(rdb)
		repos.Windows = redisstore.NewWindowRepository(rdb)
	}
	loggerParam.Logger.Info(fmt.Sprintf("auth state stored in %s", conf.Store))
	return repos, nil
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	grade.InitValidators(validate, translator)
	return validate
}

func newServerDeps(
	conf *core.Config,
	logger core.Logger,
	usrSvc *user.Service,
	gradeSvc *grade.Service,
	issuer *auth.TokenIssuer,
	guard *auth.Guard,
	blacklist *auth.Blacklist,
	rl *auth.RateLimiter,
	validate *validator.Validate,
	translator ut.Translator,
) echoapi.ServerDeps {
	return echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		GradeSvc:    gradeSvc,
		Issuer:      issuer,
		Guard:       guard,
		Blacklist:   blacklist,
		RateLimiter: rl,
		Validate:    validate,
		Translator:  translator,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(func(l *logsvc.RollbarLogger) core.Logger { return l }))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(grade.NewService))
	must(c.Provide(auth.NewTokenIssuer))
	must(c.Provide(func(ti *auth.TokenIssuer) auth.Verifier { return ti }))
	must(c.Provide(auth.NewBlacklist))
	must(c.Provide(auth.NewGuard))
	must(c.Provide(auth.NewRateLimiter))
	must(c.Provide(auth.NewSweeper))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
