package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories into the single collaborator the pipeline
// and invalidation packages program against.
type Store struct {
	*EmailRepository
	*AnalysisRepository
	*DerivedRepository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		EmailRepository:    NewEmailRepository(db),
		AnalysisRepository: NewAnalysisRepository(db),
		DerivedRepository:  NewDerivedRepository(db),
	}
}
