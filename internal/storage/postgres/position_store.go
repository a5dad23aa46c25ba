package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	address, owner, market, yes_tokens, no_tokens, liquidity_shares,
	claimed, claimed_amount, created_at, updated_at, version`

// Insert adds a new position. Returns ErrDuplicateKey if address or (owner, market) exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Address == "" || p.Owner == "" || p.Market == "" {
		return storage.ErrInvalidInput
	}

	var b bigints
	yes := b.to("yes_tokens", p.YesTokens)
	no := b.to("no_tokens", p.NoTokens)
	shares := b.to("liquidity_shares", p.LiquidityShares)
	claimedAmount := b.to("claimed_amount", p.ClaimedAmount)
	if b.err != nil {
		return b.err
	}

	query := `INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`

	_, err := s.q.Exec(ctx, query,
		p.Address, p.Owner, p.Market, yes, no, shares,
		p.Claimed, claimedAmount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return fmt.Errorf("%w: market %s does not exist", storage.ErrInvalidInput, p.Market)
		}
		return fmt.Errorf("insert position: %w", err)
	}

	p.Version = 1
	return nil
}

// GetByAddress retrieves a position by address.
func (s *PositionStore) GetByAddress(ctx context.Context, address string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE address = $1`

	p, err := scanPosition(s.q.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// Update saves the position balances and claim state if p.Version is current.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}

	var b bigints
	yes := b.to("yes_tokens", p.YesTokens)
	no := b.to("no_tokens", p.NoTokens)
	shares := b.to("liquidity_shares", p.LiquidityShares)
	claimedAmount := b.to("claimed_amount", p.ClaimedAmount)
	if b.err != nil {
		return b.err
	}

	query := `
		UPDATE positions
		SET yes_tokens = $3, no_tokens = $4, liquidity_shares = $5,
			claimed = $6, claimed_amount = $7, updated_at = $8,
			version = version + 1
		WHERE address = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		p.Address, p.Version, yes, no, shares, p.Claimed, claimedAmount, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, s.q, "positions", p.Address)
	}

	p.Version++
	return nil
}

// GetByMarket retrieves all positions of a market ordered by created_at ASC.
func (s *PositionStore) GetByMarket(ctx context.Context, market string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions WHERE market = $1
		ORDER BY created_at ASC, address ASC`

	rows, err := s.q.Query(ctx, query, market)
	if err != nil {
		return nil, fmt.Errorf("get positions by market: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByOwner retrieves all positions of an owner ordered by created_at ASC.
func (s *PositionStore) GetByOwner(ctx context.Context, owner string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions WHERE owner = $1
		ORDER BY created_at ASC, address ASC`

	rows, err := s.q.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("get positions by owner: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                              domain.Position
		yes, no, shares, claimedAmount int64
	)

	err := row.Scan(
		&p.Address, &p.Owner, &p.Market, &yes, &no, &shares,
		&p.Claimed, &claimedAmount, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}

	var b bigints
	p.YesTokens = b.from("yes_tokens", yes)
	p.NoTokens = b.from("no_tokens", no)
	p.LiquidityShares = b.from("liquidity_shares", shares)
	p.ClaimedAmount = b.from("claimed_amount", claimedAmount)
	if b.err != nil {
		return nil, b.err
	}
	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
