package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// MarketStore implements storage.MarketStore using PostgreSQL.
type MarketStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

const marketColumns = `
	address, market_id, kind, authority, oracle, title, description, category,
	resolution_source, end_time, creator_fee_rate, platform_fee_rate,
	min_bet_amount, max_bet_amount, total_yes_amount, total_no_amount,
	resolved, resolution, resolved_at, created_at, version`

// Insert adds a new market. Returns ErrDuplicateKey if address or market_id exists.
func (s *MarketStore) Insert(ctx context.Context, m *domain.Market) error {
	if m == nil || m.Address == "" {
		return storage.ErrInvalidInput
	}

	var b bigints
	minBet := b.to("min_bet_amount", m.MinBetAmount)
	maxBet := b.to("max_bet_amount", m.MaxBetAmount)
	totalYes := b.to("total_yes_amount", m.TotalYesAmount)
	totalNo := b.to("total_no_amount", m.TotalNoAmount)
	if b.err != nil {
		return b.err
	}

	query := `INSERT INTO markets (` + marketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1)`

	_, err := s.q.Exec(ctx, query,
		m.Address, m.MarketID, string(m.Kind), m.Authority, m.Oracle,
		m.Title, m.Description, m.Category, m.ResolutionSource, m.EndTime,
		int32(m.CreatorFeeRate), int32(m.PlatformFeeRate),
		minBet, maxBet, totalYes, totalNo,
		m.Resolved, m.Resolution, m.ResolvedAt, m.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert market: %w", err)
	}

	m.Version = 1
	return nil
}

// GetByAddress retrieves a market by address.
func (s *MarketStore) GetByAddress(ctx context.Context, address string) (*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE address = $1`

	m, err := scanMarket(s.q.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get market: %w", err)
	}
	return m, nil
}

// Update saves the mutable market fields if m.Version is current.
func (s *MarketStore) Update(ctx context.Context, m *domain.Market) error {
	if m == nil || m.Address == "" {
		return storage.ErrInvalidInput
	}

	var b bigints
	totalYes := b.to("total_yes_amount", m.TotalYesAmount)
	totalNo := b.to("total_no_amount", m.TotalNoAmount)
	if b.err != nil {
		return b.err
	}

	query := `
		UPDATE markets
		SET total_yes_amount = $3, total_no_amount = $4,
			resolved = $5, resolution = $6, resolved_at = $7,
			version = version + 1
		WHERE address = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		m.Address, m.Version, totalYes, totalNo, m.Resolved, m.Resolution, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, s.q, "markets", m.Address)
	}

	m.Version++
	return nil
}

// List retrieves all markets ordered by created_at ASC.
func (s *MarketStore) List(ctx context.Context) ([]*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets ORDER BY created_at ASC, address ASC`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var markets []*domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market row: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market rows: %w", err)
	}
	return markets, nil
}

func scanMarket(row pgx.Row) (*domain.Market, error) {
	var (
		m                             domain.Market
		kind                          string
		creatorFee, platformFee       int32
		minBet, maxBet, yesAmt, noAmt int64
	)

	err := row.Scan(
		&m.Address, &m.MarketID, &kind, &m.Authority, &m.Oracle,
		&m.Title, &m.Description, &m.Category, &m.ResolutionSource, &m.EndTime,
		&creatorFee, &platformFee,
		&minBet, &maxBet, &yesAmt, &noAmt,
		&m.Resolved, &m.Resolution, &m.ResolvedAt, &m.CreatedAt, &m.Version,
	)
	if err != nil {
		return nil, err
	}

	var b bigints
	m.Kind = domain.MarketKind(kind)
	m.CreatorFeeRate = uint16(creatorFee)
	m.PlatformFeeRate = uint16(platformFee)
	m.MinBetAmount = b.from("min_bet_amount", minBet)
	m.MaxBetAmount = b.from("max_bet_amount", maxBet)
	m.TotalYesAmount = b.from("total_yes_amount", yesAmt)
	m.TotalNoAmount = b.from("total_no_amount", noAmt)
	if b.err != nil {
		return nil, b.err
	}
	return &m, nil
}

// missingOrStale tells a version conflict from a missing row after an
// update matched nothing.
func missingOrStale(ctx context.Context, q querier, table, address string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1)`, table)
	if err := q.QueryRow(ctx, query, address).Scan(&exists); err != nil {
		return fmt.Errorf("check %s row: %w", table, err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrVersionConflict
}
