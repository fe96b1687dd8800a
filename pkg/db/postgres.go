// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package db wires gorm to PostgreSQL with pooled connections.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
)

type Postgres struct {
	Config *cfg.Config
	once   sync.Once
	db     *gorm.DB

	// initErr is per instance; two handles must not see each other's
	// connection failures.
	initErr error
}

func NewPostgres(config *cfg.Config) (*Postgres, error) {
	return &Postgres{
		Config: config,
	}, nil
}

func (p *Postgres) DSN() string {
	pg := p.Config.Postgres
	sslMode := pg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.Username, pg.Password, pg.Database, sslMode)
}

func (p *Postgres) Db() (*gorm.DB, error) {
	p.once.Do(func() {
		// Open connection
		var db *gorm.DB
		db, p.initErr = gorm.Open(postgres.Open(p.DSN()), &gorm.Config{})
		if p.initErr != nil {
			return
		}

		// Get sqlDB
		var sqlDB *sql.DB
		sqlDB, p.initErr = db.DB()
		if p.initErr != nil {
			return
		}

		// Setting connection pool
		sqlDB.SetMaxIdleConns(p.Config.Postgres.MaxIdleConnection)
		sqlDB.SetMaxOpenConns(p.Config.Postgres.MaxOpenConnection)
		sqlDB.SetConnMaxLifetime(time.Duration(p.Config.Postgres.MaxLifeTimeConnection) * time.Second)

		p.db = db
	})
	return p.db, p.initErr
}

func (p *Postgres) Ping() error {
	db, err := p.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (p *Postgres) Close() error {
	if p.db != nil {
		sqlDB, err := p.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (p *Postgres) Migrate(models ...interface{}) error {
	db, err := p.Db()
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}
