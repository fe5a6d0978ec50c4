// internal/pipeline/normalizer/normalizer.go

// Package normalizer loads heterogeneous requirement records from the
// five source tables and maps them into the uniform Requirement shape
// the rest of the pipeline consumes. Read-only.
package normalizer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
)

const (
	keyColumnLink = "unit_link"
	keyColumnCode = "unit_code"
)

type Normalizer struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Normalizer {
	return &Normalizer{
		db:     db,
		logger: log.With(map[string]interface{}{"component": "normalizer"}),
	}
}

// Normalize loads requirements for a unit, optionally filtered to a
// subset of categories (nil or empty means all five). The returned
// order is category order then source id, and is the order the run
// processes and persists results in.
//
// Zero requirements across every requested category yields
// ErrCodeRequirementsNotFound regardless of whether the unit itself is
// unknown; callers that care can distinguish the two themselves.
func (n *Normalizer) Normalize(ctx context.Context, unitIdentifier string, categories ...models.RequirementCategory) ([]models.Requirement, error) {
	if len(categories) == 0 {
		categories = models.AllCategories
	}
	wanted := make(map[models.RequirementCategory]bool, len(categories))
	for _, c := range categories {
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown requirement category %q", c)
		}
		wanted[c] = true
	}

	keyColumn, keyValue, err := n.resolveUnitKey(ctx, unitIdentifier)
	if err != nil {
		return nil, err
	}

	var out []models.Requirement
	for _, spec := range tableSpecs {
		if !wanted[spec.category] {
			continue
		}
		reqs, err := n.loadCategory(ctx, spec, keyColumn, keyValue, unitIdentifier)
		if err != nil {
			return nil, err
		}
		out = append(out, reqs...)
	}

	if len(out) == 0 {
		return nil, errors.NewRequirementsNotFoundError(unitIdentifier)
	}

	n.logger.Info("requirements normalized", map[string]interface{}{
		"unit":    unitIdentifier,
		"keyedBy": keyColumn,
		"count":   len(out),
	})
	return out, nil
}

// resolveUnitKey decides which linking key joins the five source
// tables for this unit: the canonical URL-shaped unit link when the
// unit record carries one, the plain unit code otherwise. The choice
// is made once and applied to every category query.
func (n *Normalizer) resolveUnitKey(ctx context.Context, unitIdentifier string) (column, value string, err error) {
	var code string
	var link sql.NullString

	row := n.db.QueryRowContext(ctx,
		`SELECT code, link FROM units WHERE code = $1 OR link = $1`, unitIdentifier)
	switch err := row.Scan(&code, &link); err {
	case nil:
		if link.Valid && isURLShaped(link.String) {
			return keyColumnLink, link.String, nil
		}
		return keyColumnCode, code, nil
	case sql.ErrNoRows:
		// Unknown unit record: query by code with the identifier as
		// given. An unknown unit and a unit with no requirements
		// surface identically from this component.
		return keyColumnCode, unitIdentifier, nil
	default:
		return "", "", errors.NewQueryExecutionFailedError("resolve unit key", err)
	}
}

func (n *Normalizer) loadCategory(ctx context.Context, spec tableSpec, keyColumn, keyValue, unitIdentifier string) ([]models.Requirement, error) {
	rows, err := n.db.QueryContext(ctx, spec.query(keyColumn), keyValue)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(string(spec.category), err)
	}
	defer rows.Close()

	var out []models.Requirement
	for rows.Next() {
		r, err := spec.scan(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError(string(spec.category), err)
		}
		r.UnitIdentifier = unitIdentifier
		r.Category = spec.category
		if r.Number == "" {
			r.Number = strconv.Itoa(len(out) + 1)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError(string(spec.category), err)
	}
	return out, nil
}

func isURLShaped(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
