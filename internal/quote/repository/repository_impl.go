package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/quote/domain"
	"gorm.io/gorm"
)

const quoteColumns = `id, quote_number, customer_email, customer_name, company_name, customer_phone, customer_siret,
	amount, currency, vat_rate, vat_amount, description, notes,
	street_and_number, city, region, postal_code, country,
	expires_at, provider_order_id, checkout_url, payment_method,
	status, paid_at, created_at, updated_at`

// terminalGuard is the store-side refusal to move a quote out of a terminal status.
var terminalGuard = buildTerminalGuard(domain.TerminalStatuses)

func buildTerminalGuard(statuses []domain.Status) string {
	quoted := make([]string, 0, len(statuses))
	for _, status := range statuses {
		quoted = append(quoted, "'"+string(status)+"'")
	}
	return "status NOT IN (" + strings.Join(quoted, ", ") + ")"
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, quote *domain.Quote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quotes (
			id, quote_number, customer_email, customer_name, company_name, customer_phone, customer_siret,
			amount, currency, vat_rate, vat_amount, description, notes,
			street_and_number, city, region, postal_code, country,
			expires_at, provider_order_id, checkout_url, payment_method,
			status, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quote.ID,
		quote.QuoteNumber,
		quote.CustomerEmail,
		quote.CustomerName,
		quote.CompanyName,
		quote.CustomerPhone,
		quote.CustomerSiret,
		quote.Amount,
		quote.Currency,
		quote.VatRate,
		quote.VatAmount,
		quote.Description,
		quote.Notes,
		quote.StreetAndNumber,
		quote.City,
		quote.Region,
		quote.PostalCode,
		quote.Country,
		quote.ExpiresAt,
		quote.ProviderOrderID,
		quote.CheckoutURL,
		quote.PaymentMethod,
		quote.Status,
		quote.PaidAt,
		quote.CreatedAt,
		quote.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Quote, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, quoteNumber string) (*domain.Quote, error) {
	return r.findOne(ctx, db, `quote_number = ?`, quoteNumber)
}

func (r *repo) FindByProviderOrderID(ctx context.Context, db *gorm.DB, providerOrderID string) (*domain.Quote, error) {
	return r.findOne(ctx, db, `provider_order_id = ?`, providerOrderID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Quote, error) {
	var item domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT `+quoteColumns+`
		 FROM quotes
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByEmail(ctx context.Context, db *gorm.DB, email string) ([]domain.Quote, error) {
	var items []domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT `+quoteColumns+`
		 FROM quotes
		 WHERE LOWER(customer_email) = LOWER(?)
		 ORDER BY created_at DESC, id DESC`,
		email,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.Quote, error) {
	var items []domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT `+quoteColumns+`
		 FROM quotes
		 WHERE status = ?
		 ORDER BY created_at DESC, id DESC`,
		status,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// TransitionStatus moves a quote from one status to another. The terminal
// guard makes the store reject writes over PAID, CANCELLED and EXPIRED even
// when the caller's snapshot is stale.
func (r *repo) TransitionStatus(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	from domain.Status,
	to domain.Status,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND `+terminalGuard,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaid keeps an existing paid_at so duplicate deliveries never move it.
func (r *repo) MarkPaid(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	from domain.Status,
	update domain.PaymentUpdate,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET status = ?,
			paid_at = COALESCE(paid_at, ?),
			payment_method = COALESCE(?, payment_method),
			updated_at = ?
		 WHERE id = ? AND status = ? AND `+terminalGuard,
		domain.StatusPaid,
		update.PaidAt,
		update.PaymentMethod,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachCheckout records a freshly created provider order. It only wins when
// the quote still has the status and provider order id it was read with.
func (r *repo) AttachCheckout(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	from domain.Status,
	priorOrderID *string,
	checkout domain.Checkout,
	now time.Time,
) (bool, error) {
	query := `UPDATE quotes
		 SET provider_order_id = ?, checkout_url = ?, status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND ` + terminalGuard
	args := []any{
		checkout.ProviderOrderID,
		checkout.CheckoutURL,
		domain.StatusProcessing,
		now,
		id,
		from,
	}
	if priorOrderID == nil {
		query += ` AND provider_order_id IS NULL`
	} else {
		query += ` AND provider_order_id = ?`
		args = append(args, *priorOrderID)
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET status = ?, updated_at = ?
		 WHERE expires_at IS NOT NULL
			AND expires_at < ?
			AND status IN (?, ?)`,
		domain.StatusExpired,
		now,
		now,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
