package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tzappu-go/internal/config"
	"tzappu-go/internal/model"
	"tzappu-go/pkg/log"
)

var DB *gorm.DB

// InitDB 初始化数据库连接并执行表结构迁移，失败时直接退出进程。
func InitDB(cfg config.DatabaseConfig) {
	var err error
	DB, err = Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	log.Infof("%s database connected successfully", cfg.Driver)
}

// Open 按配置的驱动打开 gorm 连接，配置连接池并迁移 saved_chats 表。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		// 将驱动错误翻译为 gorm.ErrDuplicatedKey 等通用错误
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.MySQL.DSN), gormCfg)
	case "sqlite", "":
		path := cfg.SQLite.Path
		if dir := filepath.Dir(path); dir != "." {
			_ = os.MkdirAll(dir, os.ModePerm)
		}
		db, err = gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
		sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
		sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间
	} else {
		// SQLite 只允许单写者，单连接可以避免 database is locked
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&model.SavedChat{}); err != nil {
		return nil, fmt.Errorf("failed to migrate saved_chats: %w", err)
	}
	return db, nil
}
