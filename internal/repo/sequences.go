package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Alijeyrad/teleconsult/pkg/idgen"
)

// sequenceSources names the column each prefix is stored in. It is only read
// once, to seed a counter for data created before id_sequences existed.
var sequenceSources = map[string]struct{ table, column string }{
	idgen.Consultation.Prefix: {"consultations", "id"},
	idgen.Receipt.Prefix:      {"consultation_receipts", "receipt_number"},
	idgen.Payment.Prefix:      {"payment_transactions", "id"},
}

func (q *queries) NextID(ctx context.Context, seq idgen.Sequence) (string, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		UPDATE id_sequences
		SET last_value = last_value + 1, updated_at = now()
		WHERE prefix = $1
		RETURNING last_value`, seq.Prefix).Scan(&n)
	if err == nil {
		return seq.Format(n), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("advance sequence %s: %w", seq.Prefix, err)
	}

	seed, err := q.legacyNext(ctx, seq)
	if err != nil {
		return "", err
	}

	// Two callers may seed at once; the loser takes the next value.
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO id_sequences (prefix, last_value)
		VALUES ($1, $2)
		ON CONFLICT (prefix) DO UPDATE
		SET last_value = GREATEST(id_sequences.last_value + 1, EXCLUDED.last_value), updated_at = now()
		RETURNING last_value`, seq.Prefix, seed).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("seed sequence %s: %w", seq.Prefix, err)
	}
	return seq.Format(n), nil
}

// legacyNext derives the next number from rows already in the table.
func (q *queries) legacyNext(ctx context.Context, seq idgen.Sequence) (int64, error) {
	src, ok := sequenceSources[seq.Prefix]
	if !ok {
		return 1, nil
	}
	lastSQL, scanSQL := legacyQueries(src.table, src.column)

	var last string
	err := q.db.QueryRowContext(ctx, lastSQL).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read last %s: %w", seq.Prefix, err)
	}
	if last == "" {
		return 1, nil
	}

	rows, err := q.db.QueryContext(ctx, scanSQL, seq.Prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("scan %s ids: %w", seq.Prefix, err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return seq.Seed(last, existing), nil
}

// legacyQueries returns the statement reading the highest stored identifier
// and the one listing every identifier with a given prefix. Ordering by
// length first keeps CON1000 above CON999.
func legacyQueries(table, column string) (last, scan string) {
	last = fmt.Sprintf(`SELECT %[2]s FROM %[1]s ORDER BY length(%[2]s) DESC, %[2]s DESC LIMIT 1`, table, column)
	scan = fmt.Sprintf(`SELECT %[2]s FROM %[1]s WHERE %[2]s LIKE $1`, table, column)
	return last, scan
}
