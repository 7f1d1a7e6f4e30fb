// Package policy decides which USB devices may stay connected and
// deauthorizes the others.
package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/devtree/internal/store"
)

// missingSerials are serial numbers cheap clones and attack gadgets ship
// with. Devices reporting one are blocked without a rule.
var missingSerials = map[string]bool{
	"":             true,
	"000000000000": true,
}

const reasonNoSerial = "unknown or empty serial number"

// Rule blocks one vendor/product/serial combination.
type Rule struct {
	VendorID  string
	ProductID string
	Serial    string
	Reason    string
	CreatedAt time.Time
}

// Rules is the block list kept in the database.
type Rules struct {
	db *store.DB
}

func NewRules(db *store.DB) *Rules {
	return &Rules{db: db}
}

// AddBlockRule blocks a device. Adding an existing rule keeps the first
// reason.
func (r *Rules) AddBlockRule(ctx context.Context, vid, pid, serial, reason string) error {
	if vid == "" || pid == "" {
		return errors.New("policy: vendor and product id are required")
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO block_rules (vid, pid, serial, reason) VALUES (?, ?, ?, ?)",
		vid, pid, serial, reason)
	if err != nil {
		return fmt.Errorf("adding block rule: %w", err)
	}
	return nil
}

// RemoveBlockRule deletes a rule and reports whether it existed.
func (r *Rules) RemoveBlockRule(ctx context.Context, vid, pid, serial string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM block_rules WHERE vid = ? AND pid = ? AND serial = ?", vid, pid, serial)
	if err != nil {
		return false, fmt.Errorf("removing block rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing block rule: %w", err)
	}
	return n > 0, nil
}

// IsBlocked checks a device against the serial heuristic and the rules.
func (r *Rules) IsBlocked(ctx context.Context, vid, pid, serial string) (bool, string, error) {
	if missingSerials[serial] {
		return true, reasonNoSerial, nil
	}

	var reason string
	err := r.db.QueryRowContext(ctx,
		"SELECT reason FROM block_rules WHERE vid = ? AND pid = ? AND serial = ?",
		vid, pid, serial).Scan(&reason)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, "", nil
	case err != nil:
		return false, "", fmt.Errorf("querying block rules: %w", err)
	}
	if reason == "" {
		reason = "device is on the block list"
	}
	return true, reason, nil
}

// List returns every rule, oldest first.
func (r *Rules) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT vid, pid, serial, reason, CAST(strftime('%s', created_at) AS INTEGER)
		FROM block_rules ORDER BY created_at, vid, pid, serial`)
	if err != nil {
		return nil, fmt.Errorf("listing block rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		var created int64
		if err := rows.Scan(&rule.VendorID, &rule.ProductID, &rule.Serial, &rule.Reason, &created); err != nil {
			return nil, fmt.Errorf("scanning block rule: %w", err)
		}
		rule.CreatedAt = time.Unix(created, 0).UTC()
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing block rules: %w", err)
	}
	return rules, nil
}
