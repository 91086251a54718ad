package core

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/go-sql-driver/mysql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"

	"github.com/shrek82/jormx/config"
	"github.com/shrek82/jormx/dialect"
	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/logger"
	"github.com/shrek82/jormx/metrics"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/pool"
	"github.com/shrek82/jormx/proxy"
	"github.com/shrek82/jormx/unitofwork"
)

// Options defines the configuration for the DB connection pool and the
// session built on it.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Logger     logger.Logger
	Metrics    *metrics.Metrics
	Proxy      proxy.Config
	ProxyStore proxy.ArtifactStore
	// PlanCacheSize bounds the cached per-entity statements; 0 means 256.
	PlanCacheSize int
}

// DB is the main entry point for the ORM. It owns the connection pool and
// one session: the UnitOfWork shared by every query, and the proxy factory
// handing out lazy references into it.
type DB struct {
	pool       pool.Pool
	dialect    dialect.Dialect
	logger     logger.Logger
	metrics    *metrics.Metrics
	uow        *unitofwork.UnitOfWork
	proxies    *proxy.Factory
	plans      *lru.Cache[string, *plan]
	persisters  *xsync.MapOf[string, *EntityPersister]
	middlewares []QueryMiddleware
}

// Open initializes a new DB instance with the given driver and DSN.
func Open(driver, dsn string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	d, ok := dialect.Get(driver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, driver)
	}
	if driver == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	p := pool.NewStdPool(sqlDB)
	p.Configure(pool.Config{
		MaxOpenConns:    opts.MaxOpenConns,
		MaxIdleConns:    opts.MaxIdleConns,
		ConnMaxLifetime: opts.ConnMaxLifetime,
	})

	if err := p.Ping(); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	size := opts.PlanCacheSize
	if size <= 0 {
		size = 256
	}
	plans, err := lru.New[string, *plan](size)
	if err != nil {
		p.Close()
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStdLogger()
	}
	db := &DB{
		pool:       p,
		dialect:    d,
		logger:     log,
		metrics:    opts.Metrics,
		uow:        unitofwork.New(unitofwork.WithLogger(log)),
		plans:      plans,
		persisters: xsync.NewMapOf[string, *EntityPersister](),
	}

	factoryOpts := []proxy.FactoryOption{
		proxy.WithLogger(log),
		proxy.WithMetrics(opts.Metrics),
		proxy.WithUnitOfWork(db.uow),
	}
	if opts.ProxyStore != nil {
		factoryOpts = append(factoryOpts, proxy.WithStore(opts.ProxyStore))
	}
	db.proxies, err = proxy.NewFactory(opts.Proxy, db.persisterFor, factoryOpts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	db.uow.SetCollectionBinder(db)
	return db, nil
}

// OpenConfig opens the database described by cfg. A configured redis
// address makes the proxy artifact store shared through redis.
func OpenConfig(cfg *config.Config) (*DB, error) {
	opts := &Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		Logger:          logger.New(cfg.Log),
		Proxy:           cfg.Proxy.Config,
	}
	if r := cfg.Proxy.Redis; r.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
		opts.ProxyStore = proxy.NewRedisStore(client, r.Prefix)
	}
	return Open(cfg.DB.Driver, cfg.DB.DSN, opts)
}

// Close shuts the middlewares down and closes the database connection.
func (db *DB) Close() error {
	for _, mw := range db.middlewares {
		if err := mw.Shutdown(); err != nil {
			db.logger.Warn("shutdown %s: %v", mw.Name(), err)
		}
	}
	return db.pool.Close()
}

// SetLogger sets a custom logger for the DB.
func (db *DB) SetLogger(l logger.Logger) {
	db.logger = l
}

func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// UnitOfWork returns the identity map of this session.
func (db *DB) UnitOfWork() *unitofwork.UnitOfWork {
	return db.uow
}

// Proxies returns the factory handing out lazy references.
func (db *DB) Proxies() *proxy.Factory {
	return db.proxies
}

// logSQL logs the SQL execution if a logger is set.
func (db *DB) logSQL(sql string, duration time.Duration, args ...any) {
	if db.logger != nil {
		db.logger.SQL(sql, duration, args...)
	}
}

// Exec executes a raw SQL statement without returning any rows.
func (db *DB) Exec(sql string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := db.pool.ExecContext(context.Background(), sql, args...)
	db.logSQL(sql, time.Since(start), args...)
	return res, err
}

// NativeQuery runs sql and hydrates its rows as described by rsm.
func (db *DB) NativeQuery(rsm *hydrate.ResultSetMapping, sql string, args ...any) *Query {
	return newQuery(db, db.pool, rsm, sql, args)
}

// Transaction executes a function within a database transaction.
func (db *DB) Transaction(fn func(tx *Tx) error) (err error) {
	start := time.Now()
	sqlTx, err := db.pool.Begin()
	db.logSQL("BEGIN", time.Since(start))
	if err != nil {
		return err
	}

	tx := &Tx{
		db:    db,
		sqlTx: sqlTx,
	}

	defer func() {
		if p := recover(); p != nil {
			start := time.Now()
			_ = sqlTx.Rollback()
			db.logSQL("ROLLBACK", time.Since(start))
			panic(p)
		} else if err != nil {
			start := time.Now()
			_ = sqlTx.Rollback()
			db.logSQL("ROLLBACK", time.Since(start))
		} else {
			start := time.Now()
			err = sqlTx.Commit()
			db.logSQL("COMMIT", time.Since(start))
		}
	}()

	err = fn(tx)
	return err
}

// Find stores into dest, a pointer to an entity pointer, the managed
// instance identified by id. A managed instance is returned without a
// query; an uninitialized reference is loaded first.
func (db *DB) Find(ctx context.Context, dest any, id ...any) error {
	return db.find(ctx, db.pool, dest, id)
}

func (db *DB) find(ctx context.Context, exec Executor, dest any, id []any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() || dv.Elem().Kind() != reflect.Ptr {
		return fmt.Errorf("%w: Find needs a pointer to an entity pointer, got %T", ErrInvalidQuery, dest)
	}
	m, err := model.ModelOf(dv.Elem().Type())
	if err != nil {
		return err
	}
	ident := model.ID(id...)

	entity, ok := db.uow.Lookup(m, ident)
	if ok {
		if p, isRef := db.proxies.ProxyOf(entity); isRef {
			if err := p.EnsureLoaded(); err != nil {
				return err
			}
		}
	} else {
		ep, err := db.persister(m)
		if err != nil {
			return err
		}
		if entity, err = ep.load(ctx, exec, ident); err != nil {
			return err
		}
		if entity == nil {
			return fmt.Errorf("%w: %w", ErrRecordNotFound, &model.EntityNotFoundError{Entity: m.Name, ID: ident})
		}
	}
	dv.Elem().Set(reflect.ValueOf(entity))
	return nil
}

// Reference returns a lazy reference to the entity of sample's type
// identified by id, without querying.
func (db *DB) Reference(ctx context.Context, sample any, id ...any) (proxy.Proxy, error) {
	m, err := model.GetModel(sample)
	if err != nil {
		return nil, err
	}
	return db.proxies.Reference(ctx, m, model.ID(id...))
}

// Logger returns the logger of the DB.
func (db *DB) Logger() logger.Logger {
	return db.logger
}
