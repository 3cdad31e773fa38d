package store

import (
	"context"
	"fmt"
	"log"

	"magabot/internal/config"
	"magabot/internal/crypto"
	"magabot/internal/database"
)

// Open builds the repository selected by STORE_BACKEND
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	var sealer crypto.Sealer = crypto.Plain{}
	if cfg.EncryptionKey != "" {
		c, err := crypto.NewRecordCipher(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid ENCRYPTION_MASTER_KEY: %w", err)
		}
		sealer = c
	} else if cfg.StoreBackend != "memory" {
		log.Println("⚠️ [STORE] ENCRYPTION_MASTER_KEY not set, records are stored unencrypted")
	}

	switch cfg.StoreBackend {
	case "", "memory":
		log.Println("📦 [STORE] Using in-memory repository")
		return NewMemoryRepository(), nil

	case "sqlite", "mysql":
		dsn := cfg.DatabaseURL
		if cfg.StoreBackend == "sqlite" && dsn == "" {
			dsn = cfg.SQLitePath
		}
		db, err := database.New(dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Initialize(); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLRepository(db, sealer), nil

	case "mongo":
		db, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		if err := db.Initialize(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return NewMongoRepository(db, sealer), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
