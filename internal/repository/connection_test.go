package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDatabaseConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "pw")
	for _, key := range []string{"DB_USER", "DB_NAME", "DB_SSLMODE"} {
		t.Setenv(key, "")
	}

	cfg := LoadDatabaseConfigFromEnv()
	assert.Equal(t, "host=db.internal port=6543 user=postgres password=pw dbname=voicenote sslmode=disable", cfg.DSN())

	t.Setenv("DATABASE_URL", "postgres://u:p@h:5432/x")
	assert.Equal(t, "postgres://u:p@h:5432/x", LoadDatabaseConfigFromEnv().DSN())
}
