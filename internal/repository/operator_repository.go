package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aeromarket/transfercore/internal/model"
)

// OperatorRepository backs the Eligibility Filter: one query joining
// operators with their vehicle types (and service areas when postcode
// filtering is on) selects the ids, then each operator is loaded with its
// vehicle types, service areas and documents.
type OperatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository creates a new operator repository.
func NewOperatorRepository(pool *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{pool: pool}
}

// GetOperator fetches a single operator with its vehicle types, service
// areas, and documents populated.
func (r *OperatorRepository) GetOperator(ctx context.Context, id uuid.UUID) (*model.Operator, error) {
	op := &model.Operator{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, approval_status, completed_jobs, created_at, updated_at
		FROM operators WHERE id = $1
	`, id).Scan(&op.ID, &op.Name, &op.ApprovalStatus, &op.CompletedJobs, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("operator: get %s: %w", id, err)
	}

	if err := r.loadAssociations(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

func (r *OperatorRepository) loadAssociations(ctx context.Context, op *model.Operator) error {
	vtRows, err := r.pool.Query(ctx, `SELECT vehicle_type FROM operator_vehicle_types WHERE operator_id = $1`, op.ID)
	if err != nil {
		return fmt.Errorf("operator: vehicle types %s: %w", op.ID, err)
	}
	defer vtRows.Close()
	for vtRows.Next() {
		var vt string
		if err := vtRows.Scan(&vt); err != nil {
			return fmt.Errorf("operator: scan vehicle type: %w", err)
		}
		op.VehicleTypes = append(op.VehicleTypes, vt)
	}
	if err := vtRows.Err(); err != nil {
		return err
	}

	saRows, err := r.pool.Query(ctx, `SELECT postcode_prefix FROM operator_service_areas WHERE operator_id = $1`, op.ID)
	if err != nil {
		return fmt.Errorf("operator: service areas %s: %w", op.ID, err)
	}
	defer saRows.Close()
	for saRows.Next() {
		var sa string
		if err := saRows.Scan(&sa); err != nil {
			return fmt.Errorf("operator: scan service area: %w", err)
		}
		op.ServiceAreas = append(op.ServiceAreas, sa)
	}
	if err := saRows.Err(); err != nil {
		return err
	}

	docRows, err := r.pool.Query(ctx, `SELECT doc_type, expires_at FROM operator_documents WHERE operator_id = $1`, op.ID)
	if err != nil {
		return fmt.Errorf("operator: documents %s: %w", op.ID, err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var d model.Document
		if err := docRows.Scan(&d.Type, &d.ExpiresAt); err != nil {
			return fmt.Errorf("operator: scan document: %w", err)
		}
		op.Documents = append(op.Documents, d)
	}
	return docRows.Err()
}

// ListEligible returns every APPROVED operator whose vehicle types include
// vehicleType and — when postcodeFilteringEnabled is true — whose service
// areas include the given postcode prefix, deduplicated and ordered by
// operator id for deterministic broadcast ordering.
// Document-currency is checked in application code via Document.Expired
// after this query, since "current as of now()" depends on the caller's
// clock, not a comparable SQL predicate alone.
func (r *OperatorRepository) ListEligible(ctx context.Context, vehicleType, postcodePrefix string, postcodeFilteringEnabled bool) ([]model.Operator, error) {
	query := `
		SELECT DISTINCT o.id
		FROM operators o
		JOIN operator_vehicle_types vt ON vt.operator_id = o.id AND vt.vehicle_type = $1
	`
	args := []any{vehicleType}
	if postcodeFilteringEnabled {
		query += ` JOIN operator_service_areas sa ON sa.operator_id = o.id AND sa.postcode_prefix = $2`
		args = append(args, postcodePrefix)
	}
	query += ` WHERE o.approval_status = ` + placeholderIndex(len(args)+1) + ` ORDER BY o.id ASC`
	args = append(args, model.ApprovalApproved)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("operator: list eligible: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("operator: scan eligible id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	operators := make([]model.Operator, 0, len(ids))
	for _, id := range ids {
		op, err := r.GetOperator(ctx, id)
		if err != nil {
			return nil, err
		}
		operators = append(operators, *op)
	}
	return operators, nil
}

func placeholderIndex(n int) string {
	return fmt.Sprintf("$%d", n)
}
