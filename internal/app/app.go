// Package app wires stores, services and handlers into one http.Handler,
// backed either by Postgres or by in-process stores.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account"
	accountrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode"
	qrrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/router"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/session"
	sessionrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/database"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/utilities"
)

type Config struct {
	Database   database.Config
	Session    session.Config
	Settings   setting.Config
	Router     router.Config
	BcryptCost int
	// SnowflakeNode is the snowflake node id for entity ids.
	SnowflakeNode int64
}

// stores groups the persistence of one backend.
type stores struct {
	accounts account.Store
	sessions session.Store
	qrcodes  qrcode.Store
	settings setting.Store
}

// App is the assembled service.
type App struct {
	Handler  http.Handler
	Sessions *session.Service
	DB       *sqlx.DB
}

// New connects the configured backend, seeds role codes and builds the handler.
func New(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &App{}

	var st stores
	if cfg.Database.InMemory() {
		logger.Warnw("using in-memory store; data is lost on exit")
		st = stores{
			accounts: accountrepo.NewMemoryRepo(),
			sessions: sessionrepo.NewMemoryRepo(),
			qrcodes:  qrrepo.NewMemoryRepo(),
			settings: settingrepo.NewMemoryRepo(),
		}
	} else {
		sqlDB, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
		// wrap with sqlx for convenience in repos/services
		a.DB = sqlx.NewDb(sqlDB, "postgres")
		st = stores{
			accounts: accountrepo.NewAccountRepo(a.DB),
			sessions: sessionrepo.NewSessionRepo(a.DB),
			qrcodes:  qrrepo.NewQRCodeRepo(a.DB),
			settings: settingrepo.NewRepo(a.DB),
		}
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		a.Close()
		return nil, err
	}

	settings := setting.NewService(st.settings, logger)
	if err := settings.SeedRoleCodes(ctx, cfg.Settings); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed role codes: %w", err)
	}
	sessions := session.NewService(st.sessions, cfg.Session, logger)
	accounts, err := account.NewService(st.accounts, account.BcryptHasher{Cost: cfg.BcryptCost}, settings, sessions, ids, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	qrcodes := qrcode.NewService(st.qrcodes, accounts, ids, logger)

	a.Sessions = sessions
	a.Handler = router.RegisterRoutes(router.Deps{
		Logger:   logger,
		Sessions: sessions,
		Accounts: account.NewHandler(accounts, sessions, logger),
		QRCodes:  qrcode.NewHandler(qrcodes, logger),
		Settings: setting.NewHandler(settings, logger),
		Config:   cfg.Router,
	})
	return a, nil
}

// Close releases the database connection, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// ConfigFromEnv gathers every package's env configuration.
func ConfigFromEnv() Config {
	cost := 12
	if v, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil && v >= bcrypt.MinCost && v <= bcrypt.MaxCost {
		cost = v
	}
	return Config{
		Database:      database.ConfigFromEnv(),
		Session:       session.ConfigFromEnv(),
		Settings:      setting.ConfigFromEnv(),
		Router:        router.ConfigFromEnv(),
		BcryptCost:    cost,
		SnowflakeNode: utilities.NodeIDFromEnv(),
	}
}
