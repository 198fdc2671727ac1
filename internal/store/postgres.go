package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PostgresStore keeps objects as JSONB documents in the objects table
type PostgresStore struct {
	pool PoolInterface
}

// NewPostgresStore creates a store backed by a pgx pool
func NewPostgresStore(pool PoolInterface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get loads one object
func (s *PostgresStore) Get(ctx context.Context, class, id string) (Object, bool, error) {
	if s.pool == nil {
		return nil, false, fmt.Errorf("database connection not available")
	}

	query := `
		SELECT fields, created_at, updated_at
		FROM objects
		WHERE class = $1 AND id = $2
	`

	var fields []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx, query, class, id).Scan(&fields, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", class, id, err)
	}

	obj, err := decodeRow(id, fields, createdAt, updatedAt)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// Query counts the matches and returns one page of them
func (s *PostgresStore) Query(ctx context.Context, class string, q Query) (*QueryResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	whereClause, args, err := buildWhere(class, q.Where)
	if err != nil {
		return nil, err
	}

	countQuery := "SELECT COUNT(*) FROM objects WHERE " + whereClause
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", class, err)
	}

	orderClause := "created_at, id"
	if q.Order != "" {
		field := strings.TrimPrefix(q.Order, "-")
		direction := "ASC"
		if strings.HasPrefix(q.Order, "-") {
			direction = "DESC"
		}
		args = append(args, field)
		orderClause = fmt.Sprintf("fields->$%d %s, created_at, id", len(args), direction)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	args = append(args, limit, q.Skip)

	query := fmt.Sprintf(`
		SELECT id, fields, created_at, updated_at
		FROM objects
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderClause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", class, err)
	}
	defer rows.Close()

	results := make([]Object, 0)
	for rows.Next() {
		var id string
		var fields []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &fields, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", class, err)
		}
		obj, err := decodeRow(id, fields, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		results = append(results, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &QueryResult{Results: results, Count: total}, nil
}

// Save upserts the object, merging fields into an existing document
func (s *PostgresStore) Save(ctx context.Context, class, id string, fields Object) (string, error) {
	if s.pool == nil {
		return "", fmt.Errorf("database connection not available")
	}

	if id == "" {
		id = uuid.New().String()
	}

	body := make(Object, len(fields))
	for k, v := range fields {
		switch k {
		case "objectId", "createdAt", "updatedAt":
		default:
			body[k] = v
		}
	}

	fieldsJSON, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `
		INSERT INTO objects (class, id, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (class, id) DO UPDATE SET
			fields = objects.fields || EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, class, id, fieldsJSON, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to save %s/%s: %w", class, id, err)
	}

	return id, nil
}

// Delete removes the object; no affected rows is not an error
func (s *PostgresStore) Delete(ctx context.Context, class, id string) error {
	if s.pool == nil {
		return fmt.Errorf("database connection not available")
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM objects WHERE class = $1 AND id = $2`, class, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", class, id, err)
	}

	if tag.RowsAffected() == 0 {
		log.Debug().Str("class", class).Str("id", id).Msg("Object already deleted")
	}

	return nil
}

// buildWhere renders the filter as JSONB comparisons. Field names and values
// are always bound as parameters; keys are sorted so the SQL is stable.
func buildWhere(class string, where Filter) (string, []interface{}, error) {
	clauses := []string{"class = $1"}
	args := []interface{}{class}

	fields := make([]string, 0, len(where))
	for field := range where {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := where[field]
		args = append(args, field)
		fieldPos := len(args)

		if in, ok := value.(In); ok {
			encoded := make([]string, 0, len(in))
			for _, v := range in {
				data, err := json.Marshal(v)
				if err != nil {
					return "", nil, fmt.Errorf("invalid constraint on %s: %w", field, err)
				}
				encoded = append(encoded, string(data))
			}
			args = append(args, encoded)
			clauses = append(clauses, fmt.Sprintf("fields->$%d = ANY($%d::text[]::jsonb[])", fieldPos, len(args)))
			continue
		}

		data, err := json.Marshal(value)
		if err != nil {
			return "", nil, fmt.Errorf("invalid constraint on %s: %w", field, err)
		}
		args = append(args, string(data))
		clauses = append(clauses, fmt.Sprintf("fields->$%d = $%d::text::jsonb", fieldPos, len(args)))
	}

	return strings.Join(clauses, " AND "), args, nil
}

func decodeRow(id string, fields []byte, createdAt, updatedAt time.Time) (Object, error) {
	obj := Object{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &obj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of %s: %w", id, err)
		}
	}
	obj["objectId"] = id
	obj["createdAt"] = createdAt.UTC().Format(time.RFC3339Nano)
	obj["updatedAt"] = updatedAt.UTC().Format(time.RFC3339Nano)
	return obj, nil
}
