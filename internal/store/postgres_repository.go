/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for the payments, members, contributions and
 * deposit_attempts tables.
 *
 * @notes
 * - Amounts are stored as NUMERIC(14,2); user info and allocations as JSONB.
 * - payments.transaction_id carries a unique constraint so a double-submitted
 *   confirmation cannot create two rows for the same attempt.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nmdasso/donation-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePayment inserts a confirmed payment record.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	userInfo, err := json.Marshal(payment.UserInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal payment user info: %w", err)
	}

	query := `
		INSERT INTO payments (id, user_id, amount, currency, provider, status, transaction_id, phone_number, email, user_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.Exec(ctx, query,
		payment.ID, payment.UserID, payment.Amount, payment.Currency, payment.Provider,
		payment.Status, payment.TransactionID, payment.PhoneNumber, payment.Email, userInfo, payment.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

// FindPaymentByTransactionID retrieves a payment by its client transaction reference.
func (r *PostgresRepository) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	query := `
		SELECT id, user_id, amount, currency, provider, status, transaction_id, phone_number, email, user_info, created_at
		FROM payments WHERE transaction_id = $1`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// ListPayments returns payment records in reverse chronological order.
func (r *PostgresRepository) ListPayments(ctx context.Context, opts domain.ListOptions) ([]domain.Payment, error) {
	query := `
		SELECT id, user_id, amount, currency, provider, status, transaction_id, phone_number, email, user_info, created_at
		FROM payments ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, normalizeLimit(opts.Limit), normalizeOffset(opts.Offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// CreateMember inserts a provisioned member record.
func (r *PostgresRepository) CreateMember(ctx context.Context, member *domain.Member) error {
	userInfo, err := json.Marshal(member.UserInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal member user info: %w", err)
	}

	query := `
		INSERT INTO members (id, user_id, member_number, membership_type, registration_date, voting_rights_date, status, user_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.Exec(ctx, query,
		member.ID, member.UserID, member.MemberNumber, member.MembershipType,
		member.RegistrationDate, member.VotingRightsDate, member.Status, userInfo,
	)
	return err
}

// ListMembers returns member records in reverse chronological order of registration.
func (r *PostgresRepository) ListMembers(ctx context.Context, opts domain.ListOptions) ([]domain.Member, error) {
	query := `
		SELECT id, user_id, member_number, membership_type, registration_date, voting_rights_date, status, user_info
		FROM members ORDER BY registration_date DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, normalizeLimit(opts.Limit), normalizeOffset(opts.Offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		var userInfo []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.MemberNumber, &m.MembershipType, &m.RegistrationDate, &m.VotingRightsDate, &m.Status, &userInfo); err != nil {
			return nil, err
		}
		if len(userInfo) > 0 {
			if err := json.Unmarshal(userInfo, &m.UserInfo); err != nil {
				return nil, fmt.Errorf("failed to unmarshal member user info: %w", err)
			}
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateContribution inserts a confirmed contribution record with its allocation.
func (r *PostgresRepository) CreateContribution(ctx context.Context, contribution *domain.Contribution) error {
	userInfo, err := json.Marshal(contribution.UserInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal contribution user info: %w", err)
	}
	alloc, err := json.Marshal(contribution.Allocation)
	if err != nil {
		return fmt.Errorf("failed to marshal allocation: %w", err)
	}

	query := `
		INSERT INTO contributions (id, user_id, category, amount, currency, payment_provider, payment_status, transaction_id, allocation, user_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.Exec(ctx, query,
		contribution.ID, contribution.UserID, contribution.Category, contribution.Amount,
		contribution.Currency, contribution.PaymentProvider, contribution.PaymentStatus,
		contribution.TransactionID, alloc, userInfo, contribution.CreatedAt,
	)
	return err
}

// ListContributions returns contribution records in reverse chronological order.
func (r *PostgresRepository) ListContributions(ctx context.Context, opts domain.ListOptions) ([]domain.Contribution, error) {
	query := `
		SELECT id, user_id, category, amount, currency, payment_provider, payment_status, transaction_id, allocation, user_info, created_at
		FROM contributions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, normalizeLimit(opts.Limit), normalizeOffset(opts.Offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []domain.Contribution
	for rows.Next() {
		var c domain.Contribution
		var alloc, userInfo []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.Category, &c.Amount, &c.Currency, &c.PaymentProvider, &c.PaymentStatus, &c.TransactionID, &alloc, &userInfo, &c.CreatedAt); err != nil {
			return nil, err
		}
		if len(alloc) > 0 {
			if err := json.Unmarshal(alloc, &c.Allocation); err != nil {
				return nil, fmt.Errorf("failed to unmarshal allocation: %w", err)
			}
		}
		if len(userInfo) > 0 {
			if err := json.Unmarshal(userInfo, &c.UserInfo); err != nil {
				return nil, fmt.Errorf("failed to unmarshal contribution user info: %w", err)
			}
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// CreateDepositAttempt appends a deposit-attempt audit row.
func (r *PostgresRepository) CreateDepositAttempt(ctx context.Context, attempt *domain.DepositAttempt) error {
	query := `
		INSERT INTO deposit_attempts (id, deposit_id, transaction_ref, flow_type, amount, currency, phone_number, provider, status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		attempt.ID, attempt.DepositID, attempt.TransactionRef, attempt.FlowType,
		attempt.Amount, attempt.Currency, attempt.PhoneNumber, attempt.Provider,
		attempt.Status, attempt.FailureReason, attempt.CreatedAt, attempt.UpdatedAt,
	)
	return err
}

// SettleDepositAttempt records the terminal audit status for one attempt.
func (r *PostgresRepository) SettleDepositAttempt(ctx context.Context, attemptID uuid.UUID, status string, failureReason *string) error {
	query := `
		UPDATE deposit_attempts SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, attemptID, status, failureReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDepositAttemptNotFound
	}
	return nil
}

// ListUnsettledDepositAttempts returns attempts still awaiting reconciliation:
// rows left in "initiated" or "timed_out" older than the given moment.
func (r *PostgresRepository) ListUnsettledDepositAttempts(ctx context.Context, olderThan time.Time, limit int) ([]domain.DepositAttempt, error) {
	query := `
		SELECT id, deposit_id, transaction_ref, flow_type, amount, currency, phone_number, provider, status, failure_reason, created_at, updated_at
		FROM deposit_attempts
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at ASC LIMIT $4`
	rows, err := r.db.Query(ctx, query, domain.AttemptInitiated, domain.AttemptTimedOut, olderThan, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.DepositAttempt
	for rows.Next() {
		var a domain.DepositAttempt
		if err := rows.Scan(&a.ID, &a.DepositID, &a.TransactionRef, &a.FlowType, &a.Amount, &a.Currency, &a.PhoneNumber, &a.Provider, &a.Status, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var userInfo []byte
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Provider, &p.Status, &p.TransactionID, &p.PhoneNumber, &p.Email, &userInfo, &p.CreatedAt); err != nil {
		return nil, err
	}
	if len(userInfo) > 0 {
		if err := json.Unmarshal(userInfo, &p.UserInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment user info: %w", err)
		}
	}
	return &p, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
