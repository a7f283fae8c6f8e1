package models

import (
	sqliteEncrypt "github.com/Daskott/gorm-sqlite-cipher"
	"gorm.io/gorm"
)

// InitializeTestDb points the package at a fresh in-memory db. Each call
// drops whatever a previous test left behind.
func InitializeTestDb() {
	var err error

	db, err = gorm.Open(sqliteEncrypt.Open("file::memory:?cache=shared"), &gorm.Config{Logger: silentLogger()})
	if err != nil {
		logg.Panicf("failed to open test database: %v", err)
	}

	// A shared in-memory db only lives as long as a connection to it
	sqlDB, err := db.DB()
	if err != nil {
		logg.Panic(err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.Migrator().DropTable(&User{}, &Contact{}, &Alert{})
	if err != nil {
		logg.Panic(err)
	}

	if err = migrate(); err != nil {
		logg.Panic(err)
	}
}
