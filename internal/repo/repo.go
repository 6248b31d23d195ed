// Package repo persists consultations, their reschedule history, receipts and
// payment transactions.
package repo

import (
	"context"
	"embed"
	"errors"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/pkg/idgen"
)

var (
	ErrNotFound = errors.New("repo: record not found")
	ErrConflict = errors.New("repo: record already exists")
)

// Queries is the set of operations available both inside and outside a
// transaction.
type Queries interface {
	// NextID reserves the next identifier of seq.
	NextID(ctx context.Context, seq idgen.Sequence) (string, error)

	CreateConsultation(ctx context.Context, c *model.Consultation) error
	GetConsultation(ctx context.Context, id string) (*model.Consultation, error)
	UpdateConsultation(ctx context.Context, c *model.Consultation) error
	ConsultationExists(ctx context.Context, id string) (bool, error)
	// ListOpenConsultations returns consultations whose status can still be
	// reported overdue, scheduled before the given date (inclusive).
	ListOpenConsultations(ctx context.Context, onOrBefore model.Date) ([]*model.Consultation, error)

	AppendReschedule(ctx context.Context, rec *model.RescheduleRecord) error
	ListReschedules(ctx context.Context, consultationID string) ([]*model.RescheduleRecord, error)

	CreateReceipt(ctx context.Context, r *model.Receipt) error
	GetReceiptByConsultation(ctx context.Context, consultationID string) (*model.Receipt, error)

	CreatePaymentTransaction(ctx context.Context, p *model.PaymentTransaction) error
	GetPaymentTransaction(ctx context.Context, merchantTxnID string) (*model.PaymentTransaction, error)
	UpdatePaymentTransaction(ctx context.Context, p *model.PaymentTransaction) error
}

// Store adds transactions on top of Queries.
type Store interface {
	Queries
	// WithTx runs fn in a single transaction. The transaction is committed when
	// fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}
}
