// Command verify-db-connection checks the settlement repository database and its schema.
package main

import (
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/db"
)

var requiredTables = []string{
	"movements",
	"settlement_transactions",
	"settlement_transaction_movements",
}

func main() {
	fmt.Println("🔍 Verifying database connection and schema...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gormDB, err := db.InitDB(config.AppConfig.Database, logrus.New())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	missing := 0
	for _, table := range requiredTables {
		if !gormDB.Migrator().HasTable(table) {
			fmt.Printf("❌ table %s does not exist!\n", table)
			missing++
			continue
		}
		var rows int64
		if err := gormDB.Table(table).Count(&rows).Error; err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
		fmt.Printf("✅ %s: %d row(s)\n", table, rows)
	}

	if missing > 0 {
		log.Fatalf("%d table(s) missing", missing)
	}
	fmt.Println("✅ Schema verified")
}
