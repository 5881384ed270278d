// Package ledger owns every mutation of the per-user entitlement record.
//
// All reads and writes of one operation happen inside a single store
// transaction, reads first. The entitlement invariant is checked before each
// write; a violation aborts the transaction.
package ledger

import (
	"time"

	"github.com/rs/zerolog"

	"specledger/internal/audit"
	"specledger/internal/directory"
	"specledger/internal/domain"
)

// Options tune account defaults.
type Options struct {
	// FreeSpecAllowance is the free allowance given to newly registered users.
	FreeSpecAllowance int
}

// Service is the entitlement ledger, the credit consumption gate and the
// pending entitlement queue.
type Service struct {
	store  domain.Store
	dir    *directory.Directory
	audit  *audit.Appender
	logger zerolog.Logger
	opts   Options
	now    func() time.Time
}

func NewService(store domain.Store, dir *directory.Directory, appender *audit.Appender, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		store:  store,
		dir:    dir,
		audit:  appender,
		logger: logger.With().Str("component", "ledger").Logger(),
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the backing store for callers that compose ledger steps into
// their own transaction.
func (s *Service) Store() domain.Store { return s.store }

// Directory exposes the user lookup used inside ledger transactions.
func (s *Service) Directory() *directory.Directory { return s.dir }
