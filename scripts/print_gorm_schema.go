package main

import (
	"fmt"
	"log"
	"os"

	"github.com/cydxin/pulse-sdk/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// 对比 GORM 解析出的字段类型与库里实际的列，排查迁移后类型不一致的问题。
//
// Usage:
//
//	export PULSE_DSN='user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=true&loc=Local'
//	go run ./scripts/print_gorm_schema.go
func main() {
	dsn := os.Getenv("PULSE_DSN")
	if dsn == "" {
		log.Fatal("PULSE_DSN is empty")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	for _, m := range []schema.Tabler{&models.User{}, &models.Notification{}, &models.ChatMessage{}, &models.DeviceToken{}} {
		printTable(db, m)
	}
}

func printTable(db *gorm.DB, m schema.Tabler) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(m); err != nil {
		log.Fatalf("parse %s: %v", m.TableName(), err)
	}

	fmt.Printf("=== %s: GORM ===\n", m.TableName())
	for _, f := range stmt.Schema.Fields {
		if f.DBName == "" {
			continue
		}
		// Dialect SQL type (what GORM will use in CREATE TABLE / ALTER TABLE)
		fmt.Printf("%s\t%s\t%s\n", f.DBName, stmt.DB.Dialector.DataTypeOf(f), f.Tag.Get("gorm"))
	}

	type col struct {
		Field string
		Type  string
		Null  string
		Key   string
	}
	var cols []col
	// Works on MySQL
	if err := db.Raw("SHOW COLUMNS FROM " + m.TableName()).Scan(&cols).Error; err != nil {
		fmt.Printf("SHOW COLUMNS FROM %s failed: %v\n", m.TableName(), err)
		return
	}
	fmt.Printf("=== %s: SHOW COLUMNS ===\n", m.TableName())
	for _, c := range cols {
		fmt.Printf("%s\t%s\t%s\t%s\n", c.Field, c.Type, c.Null, c.Key)
	}
}
