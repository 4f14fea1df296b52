package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"

	"PlayCore/internal/config"
	"PlayCore/internal/env"
	xerrors "PlayCore/internal/errors"
	"PlayCore/pkg/module"
)

// MySQLName 是 MySQL 日志扩展的注册名。
const MySQLName = "mysql-journal"

const insertJournalSQL = `INSERT INTO playback_journal
    (id, instance_id, event, format, source, controller, player, error_code, error_message, occurred_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// MySQLJournal 把生命周期事件写入 playback_journal 表。
type MySQLJournal struct {
	db *sql.DB

	mu       sync.Mutex
	migrated bool
}

// NewMySQLJournal 校验 DSN 并准备连接池，不会立即连接数据库。
func NewMySQLJournal(cfg config.MySQLConfig) (*MySQLJournal, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "MySQL DSN 格式错误")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTelemetryFailure, err, "连接 MySQL 失败")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if lifetime := cfg.ConnMaxLifetime(); lifetime > 0 {
		db.SetConnMaxLifetime(lifetime)
	}
	return newMySQLJournal(db), nil
}

func newMySQLJournal(db *sql.DB) *MySQLJournal {
	return &MySQLJournal{db: db}
}

func (j *MySQLJournal) ensureSchema(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.migrated {
		return nil
	}
	if err := runMigrations(ctx, j.db); err != nil {
		return xerrors.Wrap(xerrors.CodeTelemetryFailure, err, "初始化 playback_journal 失败")
	}
	j.migrated = true
	return nil
}

// Publish 写入一条事件，首次写入前执行迁移。
func (j *MySQLJournal) Publish(ctx context.Context, ev Event) error {
	if err := j.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := j.db.ExecContext(ctx, insertJournalSQL,
		ev.ID, ev.InstanceID, ev.Name, ev.Format, ev.Source,
		ev.Controller, ev.Player, ev.ErrorCode, ev.Error, ev.OccurredAt.UnixMilli())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTelemetryFailure, err, "写入 playback_journal 失败")
	}
	return nil
}

// Close 关闭连接池。
func (j *MySQLJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// MySQLClass 在配置了 telemetry.mysql.dsn 时可用。
func MySQLClass() module.Class {
	return module.Class{
		Info: module.Info{
			Name:        MySQLName,
			Role:        module.RoleExtension,
			Description: "persists lifecycle events to MySQL",
			Version:     "1.0.0",
			Requires:    []env.Capability{env.CapabilityNetwork},
		},
		Supported: func(_ env.Snapshot, cfg *config.Config) bool {
			return cfg != nil && strings.TrimSpace(cfg.Telemetry.MySQL.DSN) != ""
		},
		New: func(_ context.Context, mc *module.Context) (module.Module, error) {
			journal, err := NewMySQLJournal(mc.Config.Telemetry.MySQL)
			if err != nil {
				return nil, err
			}
			return NewSink(MySQLName, mc, journal), nil
		},
	}
}
