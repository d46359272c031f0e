package db

import (
	"log"
	"os"
	"time"

	"school-collab/internal/config"

	"github.com/golang/glog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var AppDb *gorm.DB

// ConnectDb opens the school database. The directory is optional, so a
// failure is returned instead of exiting.
func ConnectDb() error {
	level := logger.Info
	if config.AppConfig.Environment == "production" {
		level = logger.Error
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second, // Slow SQL threshold
			LogLevel:      level,       // Log level
			Colorful:      true,        // Enable color
		},
	)

	db, err := gorm.Open(postgres.Open(config.AppConfig.DatabaseURL), &gorm.Config{Logger: newLogger})
	if err != nil {
		return err
	}
	AppDb = db
	glog.Infof("[db]connected")

	return nil
}

func CloseDb() {
	if AppDb == nil {
		return
	}
	sqlDB, err := AppDb.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		glog.Errorf("[db]failed to close: %v", err)
		return
	}
	glog.Infof("[db]closed")
}
