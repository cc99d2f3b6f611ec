package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	analyticspg "github.com/veilproof/riskscope/internal/infrastructure/analytics/postgres"
)

func openAnalyticsDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	repo := analyticspg.NewInferenceRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
