package repository

import (
	"database/sql"

	"go.uber.org/zap"
)

// Store groups the table repositories over one connection pool.
// It satisfies the evaluator's Store (DailySummaries, Intraday, InsertAlert) and the
// ingester's.
type Store struct {
	*DailySummaryRepository
	*IntradayRepository
	*AlertsRepository
	*UsersRepository
	*SleepLogRepository
}

// NewStore creates all repositories on db; tokens encrypts user credentials.
func NewStore(db *sql.DB, tokens *TokenCipher, logger *zap.Logger) *Store {
	return &Store{
		DailySummaryRepository: NewDailySummaryRepository(db, logger),
		IntradayRepository:     NewIntradayRepository(db, logger),
		AlertsRepository:       NewAlertsRepository(db, logger),
		UsersRepository:        NewUsersRepository(db, tokens, logger),
		SleepLogRepository:     NewSleepLogRepository(db, logger),
	}
}
