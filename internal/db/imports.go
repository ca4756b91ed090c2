package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ResolveLatestImportDBName returns the db_name with the most recent imported_at
// from public.latest_successful_imports where db_name ILIKE '%city%'.
// q must be connected to the cluster's metadata database.
func ResolveLatestImportDBName(ctx context.Context, q Querier, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", errors.New("city is required")
	}
	const stmt = `
SELECT COALESCE(db_name, '')
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name string
	if err := q.QueryRow(ctx, stmt, city).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no database found for city like %q", city)
		}
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return name, nil
}
