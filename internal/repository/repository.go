package repository

import (
	"context"
	"database/sql"
	"time"

	"biofilter_monitor/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.Operator, error)
}

// EventRepo is the append-only engine audit log.
type EventRepo interface {
	Append(ctx context.Context, e models.EngineEvent) error
	List(ctx context.Context, q EventQuery) ([]models.EngineEvent, error)
}

// EventQuery filters the audit log. Zero values mean "no filter".
type EventQuery struct {
	From  time.Time // inclusive
	To    time.Time // inclusive
	Type  string
	Limit int // keep only the most recent Limit events
}

type Repository struct {
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo: NewEventSQLite(db),
		Auth:      NewOperatorRepository(db),
	}
}
