package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"swarmcp.io/models"
)

const clusterColumns = `id, tenant_id, name, strategy, nodes_count, last_state, last_ping,
	cert_ca, cert_cert, cert_key, created_at, updated_at`

func scanCluster(row rowScanner) (*models.Cluster, error) {
	var (
		c         models.Cluster
		strategy  string
		lastState string
		lastPing  sql.NullTime
		ca        sql.NullString
		cert      sql.NullString
		key       sql.NullString
	)

	if err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &strategy, &c.NodesCount, &lastState, &lastPing,
		&ca, &cert, &key, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Strategy = models.Strategy(strategy)
	c.LastState = models.NodeState(lastState)
	c.LastPing = timePtr(lastPing)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if ca.Valid || cert.Valid || key.Valid {
		c.Cert = &models.ClusterCert{CA: ca.String, Cert: cert.String, Key: key.String}
	}
	return &c, nil
}

func certColumns(cert *models.ClusterCert) (sql.NullString, sql.NullString, sql.NullString) {
	if cert == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: cert.CA, Valid: true},
		sql.NullString{String: cert.Cert, Valid: true},
		sql.NullString{String: cert.Key, Valid: true}
}

// InsertCluster persists a new cluster.
func (s *Store) InsertCluster(ctx context.Context, c *models.Cluster) (err error) {
	defer observe("insert_cluster", time.Now(), &err)

	ca, cert, key := certColumns(c.Cert)
	_, err = s.exec(ctx, `
		INSERT INTO clusters (`+clusterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.TenantID, c.Name, string(c.Strategy), c.NodesCount, string(c.LastState), nullTime(c.LastPing),
		ca, cert, key, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cluster: %w", err)
	}
	return nil
}

// GetCluster loads a cluster by ID.
func (s *Store) GetCluster(ctx context.Context, id string) (c *models.Cluster, err error) {
	defer observe("get_cluster", time.Now(), &err)

	c, err = scanCluster(s.queryRow(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrClusterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}
	return c, nil
}

// ListClusters returns the clusters of a tenant filtered by name and strategy,
// oldest first. An empty tenantID lists every cluster.
func (s *Store) ListClusters(ctx context.Context, tenantID, name string, strategy models.Strategy) (clusters []*models.Cluster, err error) {
	defer observe("list_clusters", time.Now(), &err)

	where := []string{"1 = 1"}
	var args []any
	if tenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, tenantID)
	}
	if name != "" {
		where = append(where, "name = ?")
		args = append(args, name)
	}
	if strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, string(strategy))
	}

	rows, err := s.query(ctx, `
		SELECT `+clusterColumns+`
		FROM clusters
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clusters: %w", err)
	}
	return clusters, nil
}

// UpdateCluster writes the user-editable fields of c.
func (s *Store) UpdateCluster(ctx context.Context, c *models.Cluster) (err error) {
	defer observe("update_cluster", time.Now(), &err)

	ca, cert, key := certColumns(c.Cert)
	result, err := s.exec(ctx, `
		UPDATE clusters
		SET name = ?, strategy = ?, cert_ca = ?, cert_cert = ?, cert_key = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, string(c.Strategy), ca, cert, key, c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update cluster: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cluster update result: %w", err)
	}
	if rows == 0 {
		return models.ErrClusterNotFound
	}
	return nil
}

// AggregateFunc recomputes the aggregate fields of c from its member nodes.
type AggregateFunc func(c *models.Cluster, nodes []NodeStatus)

// RecomputeAggregate applies fn to a cluster and the statuses of its nodes and
// stores the result, all in one transaction. The cluster row is written first,
// which locks it: recomputations of one cluster run one after another, and the
// last one to commit has seen every node committed before it.
//
// It returns the cluster as stored before and after fn, or
// models.ErrClusterNotFound when the cluster is gone.
func (s *Store) RecomputeAggregate(ctx context.Context, clusterID string, now time.Time, fn AggregateFunc) (before, after *models.Cluster, err error) {
	defer observe("recompute_cluster_aggregate", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin aggregate transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, s.rebind(`UPDATE clusters SET updated_at = ? WHERE id = ?`), now.UTC(), clusterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock cluster: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check cluster lock: %w", err)
	}
	if rows == 0 {
		return nil, nil, models.ErrClusterNotFound
	}

	before, err = scanCluster(tx.QueryRowContext(ctx, s.rebind(`SELECT `+clusterColumns+` FROM clusters WHERE id = ?`), clusterID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cluster: %w", err)
	}

	statusRows, err := tx.QueryContext(ctx, s.rebind(nodeStatusQuery+` WHERE cluster_id = ?`), clusterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list node statuses: %w", err)
	}
	statuses, err := scanStatuses(statusRows)
	if err != nil {
		return nil, nil, err
	}

	next := *before
	fn(&next, statuses)
	next.UpdatedAt = now.UTC()

	if _, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE clusters
		SET nodes_count = ?, last_state = ?, last_ping = ?, updated_at = ?
		WHERE id = ?
	`), next.NodesCount, string(next.LastState), nullTime(next.LastPing), next.UpdatedAt, clusterID); err != nil {
		return nil, nil, fmt.Errorf("failed to update cluster aggregate: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit cluster aggregate: %w", err)
	}
	return before, &next, nil
}

// DeleteCluster removes a cluster; remaining nodes are removed by cascade.
func (s *Store) DeleteCluster(ctx context.Context, id string) (err error) {
	defer observe("delete_cluster", time.Now(), &err)

	result, err := s.exec(ctx, `DELETE FROM clusters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return models.ErrClusterNotFound
	}
	return nil
}
