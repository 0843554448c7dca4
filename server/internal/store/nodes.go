package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"swarmcp.io/models"
)

const nodeColumns = `id, cluster_id, name, token, master, byon, region, node_size, public_ip,
	cpu, memory, disk, labels, docker_version, swarm_version, last_state, last_ping,
	machine_id, created_at, updated_at`

// NodeStatus is the slice of a node the cluster aggregate is computed from.
type NodeStatus struct {
	ID        string
	ClusterID string
	Master    bool
	LastState models.NodeState
	LastPing  *time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		n         models.Node
		region    sql.NullString
		nodeSize  sql.NullString
		publicIP  sql.NullString
		cpu       sql.NullInt64
		memory    sql.NullInt64
		disk      sql.NullFloat64
		labels    string
		lastState string
		lastPing  sql.NullTime
	)

	if err := row.Scan(
		&n.ID, &n.ClusterID, &n.Name, &n.Token, &n.Master, &n.Byon,
		&region, &nodeSize, &publicIP, &cpu, &memory, &disk, &labels,
		&n.DockerVersion, &n.SwarmVersion, &lastState, &lastPing,
		&n.MachineID, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	n.Region = stringPtr(region)
	n.NodeSize = stringPtr(nodeSize)
	n.PublicIP = stringPtr(publicIP)
	if cpu.Valid {
		v := int(cpu.Int64)
		n.CPU = &v
	}
	if memory.Valid {
		v := int(memory.Int64)
		n.Memory = &v
	}
	if disk.Valid {
		v := disk.Float64
		n.Disk = &v
	}
	n.LastState = models.NodeState(lastState)
	n.LastPing = timePtr(lastPing)
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()

	n.Labels = models.Labels{}
	if strings.TrimSpace(labels) != "" {
		if err := json.Unmarshal([]byte(labels), &n.Labels); err != nil {
			return nil, fmt.Errorf("failed to decode labels of node %s: %w", n.ID, err)
		}
	}

	return &n, nil
}

func encodeLabels(labels models.Labels) (string, error) {
	if labels == nil {
		return "{}", nil
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode labels: %w", err)
	}
	return string(b), nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// InsertNode persists a new node. Unique violations come back as
// models.ErrDuplicateName, models.ErrPublicIPTaken, models.ErrTokenCollision
// or *models.MasterUniquenessError.
func (s *Store) InsertNode(ctx context.Context, n *models.Node) (err error) {
	defer observe("insert_node", time.Now(), &err)

	labels, err := encodeLabels(n.Labels)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `
		INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID, n.ClusterID, n.Name, n.Token, n.Master, n.Byon,
		nullString(n.Region), nullString(n.NodeSize), nullString(n.PublicIP),
		nullInt(n.CPU), nullInt(n.Memory), nullFloat(n.Disk), labels,
		n.DockerVersion, n.SwarmVersion, string(n.LastState), nullTime(n.LastPing),
		n.MachineID, n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	)
	if err != nil {
		if mapped := mapConstraint(err, n.ClusterID); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// GetNode loads a node by ID.
func (s *Store) GetNode(ctx context.Context, id string) (n *models.Node, err error) {
	defer observe("get_node", time.Now(), &err)

	n, err = scanNode(s.queryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load node: %w", err)
	}
	return n, nil
}

// GetNodeInCluster loads a node by ID, scoped to a cluster.
func (s *Store) GetNodeInCluster(ctx context.Context, clusterID, id string) (*models.Node, error) {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ClusterID != clusterID {
		return nil, models.ErrNodeNotFound
	}
	return n, nil
}

// GetNodeByToken loads the node owning token.
func (s *Store) GetNodeByToken(ctx context.Context, token string) (n *models.Node, err error) {
	defer observe("get_node_by_token", time.Now(), &err)

	n, err = scanNode(s.queryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load node by token: %w", err)
	}
	return n, nil
}

// ListNodes returns the nodes of a cluster matching filter, oldest first.
func (s *Store) ListNodes(ctx context.Context, clusterID string, filter models.NodeFilter) (nodes []*models.Node, err error) {
	defer observe("list_nodes", time.Now(), &err)

	where := []string{"cluster_id = ?"}
	args := []any{clusterID}
	if filter.Byon != nil {
		where = append(where, "byon = ?")
		args = append(args, *filter.Byon)
	}
	if filter.Master != nil {
		where = append(where, "master = ?")
		args = append(args, *filter.Master)
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Region != "" {
		where = append(where, "region = ?")
		args = append(args, filter.Region)
	}
	if filter.NodeSize != "" {
		where = append(where, "node_size = ?")
		args = append(args, filter.NodeSize)
	}

	rows, err := s.query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if matchLabels(n.Labels, filter.Labels) {
			nodes = append(nodes, n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	return nodes, nil
}

func matchLabels(labels models.Labels, want map[string]string) bool {
	for k, v := range want {
		got, ok := labels[k]
		if !ok || fmt.Sprint(got) != v {
			return false
		}
	}
	return true
}

// UpdateNode writes every mutable column of n. Byon and cluster ownership never change.
func (s *Store) UpdateNode(ctx context.Context, n *models.Node) (err error) {
	defer observe("update_node", time.Now(), &err)

	labels, err := encodeLabels(n.Labels)
	if err != nil {
		return err
	}

	result, err := s.exec(ctx, `
		UPDATE nodes
		SET name = ?, token = ?, master = ?, region = ?, node_size = ?, public_ip = ?,
			cpu = ?, memory = ?, disk = ?, labels = ?, docker_version = ?, swarm_version = ?,
			last_state = ?, last_ping = ?, machine_id = ?, updated_at = ?
		WHERE id = ?
	`,
		n.Name, n.Token, n.Master, nullString(n.Region), nullString(n.NodeSize), nullString(n.PublicIP),
		nullInt(n.CPU), nullInt(n.Memory), nullFloat(n.Disk), labels, n.DockerVersion, n.SwarmVersion,
		string(n.LastState), nullTime(n.LastPing), n.MachineID, n.UpdatedAt.UTC(),
		n.ID,
	)
	if err != nil {
		if mapped := mapConstraint(err, n.ClusterID); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check node update result: %w", err)
	}
	if rows == 0 {
		return models.ErrNodeNotFound
	}
	return nil
}

// UpdateNodePing sets last_ping only.
func (s *Store) UpdateNodePing(ctx context.Context, id string, ping time.Time) (err error) {
	defer observe("update_node_ping", time.Now(), &err)

	result, err := s.exec(ctx, `UPDATE nodes SET last_ping = ? WHERE id = ?`, ping.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update node ping: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check node ping result: %w", err)
	}
	if rows == 0 {
		return models.ErrNodeNotFound
	}
	return nil
}

// DeleteNode removes a node record.
func (s *Store) DeleteNode(ctx context.Context, id string) (err error) {
	defer observe("delete_node", time.Now(), &err)

	result, err := s.exec(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return models.ErrNodeNotFound
	}
	return nil
}

// FindMaster returns the ID of the master node of a cluster other than
// excludeID, or "" when there is none.
func (s *Store) FindMaster(ctx context.Context, clusterID, excludeID string) (id string, err error) {
	defer observe("find_master", time.Now(), &err)

	err = s.queryRow(ctx, `
		SELECT id FROM nodes
		WHERE cluster_id = ? AND master = ? AND id <> ?
		LIMIT 1
	`, clusterID, true, excludeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up master: %w", err)
	}
	return id, nil
}

// NameTaken reports whether another node of the cluster already uses name.
func (s *Store) NameTaken(ctx context.Context, clusterID, name, excludeID string) (taken bool, err error) {
	defer observe("name_taken", time.Now(), &err)

	var count int
	if err = s.queryRow(ctx, `
		SELECT COUNT(*) FROM nodes WHERE cluster_id = ? AND name = ? AND id <> ?
	`, clusterID, name, excludeID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check node name: %w", err)
	}
	return count > 0, nil
}

// PublicIPTaken reports whether another node already uses ip.
func (s *Store) PublicIPTaken(ctx context.Context, ip, excludeID string) (taken bool, err error) {
	defer observe("public_ip_taken", time.Now(), &err)

	var count int
	if err = s.queryRow(ctx, `
		SELECT COUNT(*) FROM nodes WHERE public_ip = ? AND id <> ?
	`, ip, excludeID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check public ip: %w", err)
	}
	return count > 0, nil
}

const nodeStatusQuery = `SELECT id, cluster_id, master, last_state, last_ping FROM nodes`

// NodeStatuses returns the status slice of every node of a cluster,
// or of every node when clusterID is empty.
func (s *Store) NodeStatuses(ctx context.Context, clusterID string) (statuses []NodeStatus, err error) {
	defer observe("node_statuses", time.Now(), &err)

	query := nodeStatusQuery
	var args []any
	if clusterID != "" {
		query += ` WHERE cluster_id = ?`
		args = append(args, clusterID)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list node statuses: %w", err)
	}
	return scanStatuses(rows)
}

func scanStatuses(rows *sql.Rows) ([]NodeStatus, error) {
	defer rows.Close()

	var statuses []NodeStatus
	for rows.Next() {
		var (
			st        NodeStatus
			lastState string
			lastPing  sql.NullTime
		)
		if err := rows.Scan(&st.ID, &st.ClusterID, &st.Master, &lastState, &lastPing); err != nil {
			return nil, fmt.Errorf("failed to scan node status: %w", err)
		}
		st.LastState = models.NodeState(lastState)
		st.LastPing = timePtr(lastPing)
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate node statuses: %w", err)
	}
	return statuses, nil
}
