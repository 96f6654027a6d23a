package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/assetledger?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("schema setup failed: %v", err)
	}
	return db
}

func TestMySQLStore_Contract(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	testStoreContract(t, NewMySQLStore[domain.AssetGroup](db, "test_group"))
}
