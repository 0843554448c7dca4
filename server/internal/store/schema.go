package store

// schema is portable between SQLite and PostgreSQL.
// nodes_one_master_per_cluster is the authoritative guard for master uniqueness.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clusters (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    strategy TEXT NOT NULL DEFAULT 'spread',
    nodes_count INTEGER NOT NULL DEFAULT 0,
    last_state TEXT NOT NULL DEFAULT '',
    last_ping TIMESTAMP,
    cert_ca TEXT,
    cert_cert TEXT,
    cert_key TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_clusters_tenant ON clusters(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    cluster_id TEXT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    token TEXT NOT NULL,
    master BOOLEAN NOT NULL DEFAULT FALSE,
    byon BOOLEAN NOT NULL DEFAULT FALSE,
    region TEXT,
    node_size TEXT,
    public_ip TEXT,
    cpu INTEGER,
    memory INTEGER,
    disk DOUBLE PRECISION,
    labels TEXT NOT NULL DEFAULT '{}',
    docker_version TEXT NOT NULL DEFAULT '',
    swarm_version TEXT NOT NULL DEFAULT '',
    last_state TEXT NOT NULL,
    last_ping TIMESTAMP,
    machine_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    CONSTRAINT nodes_token_key UNIQUE (token),
    CONSTRAINT nodes_public_ip_key UNIQUE (public_ip),
    CONSTRAINT nodes_cluster_name_key UNIQUE (cluster_id, name),
    CONSTRAINT nodes_byon_region_check CHECK (
        (byon AND region IS NULL AND node_size IS NULL)
        OR (NOT byon AND region IS NOT NULL AND node_size IS NOT NULL)
    )
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS nodes_one_master_per_cluster ON nodes(cluster_id) WHERE master = TRUE`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_cluster ON nodes(cluster_id)`,
}
