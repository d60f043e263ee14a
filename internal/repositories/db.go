package repositories

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bundlevault/bundlevault/internal/config"
	"github.com/bundlevault/bundlevault/internal/models"
)

func ConnectDatabase() *gorm.DB {
	dsn := config.Envs.DB_URL
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	// Run migrations
	err = db.AutoMigrate(
		&models.Download{},
		&models.DownloadAsset{},
		&models.DownloadGrant{},
	)
	if err != nil {
		log.Fatal("Migration failed:", err)
	}
	log.Println("Successfully connected to database")
	return db
}
