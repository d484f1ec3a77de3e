package postgres

import (
	"github.com/farbook/far-chat/config"
	"github.com/farbook/far-chat/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the connection pool behind every repository
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to Postgres and prepares the factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories builds the repository set sharing the factory pool
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Conversations: NewConversationRepository(f.db, f.logger),
		Messages:      NewMessageRepository(f.db, f.logger),
	}
}

// GetDB exposes the pool for schema init and health checks
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close releases the pool
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
