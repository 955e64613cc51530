package Models

import (
	"fmt"

	"ArteryPulse/Config"
	"ArteryPulse/Utils/Logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func ConnectDataBase(cfg Config.DBConfig) error {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable", cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
	db, err := Open(postgres.Open(dsn))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	Logger.Log.Infow("connected to the database", "host", cfg.Host, "name", cfg.Name)
	DB = db
	return nil
}

// Open connects with the given dialector, migrates the schema and returns
// the handle. Tests pass an in-memory sqlite dialector.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	// Parents before children.
	return db.AutoMigrate(
		&User{},
		&DeviceToken{},
		&Patient{},
		&TestRecord{},
	)
}
