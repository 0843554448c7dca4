package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	nomadapi "github.com/hashicorp/nomad/api"
	"go.uber.org/zap"

	"swarmcp.io/models"
)

// Meta keys carried by machine jobs. The provisioner image reads them from
// NOMAD_META_* environment variables.
const (
	MetaAction        = "action"
	MetaNodeID        = "node_id"
	MetaClusterID     = "cluster_id"
	MetaNodeName      = "node_name"
	MetaRegion        = "region"
	MetaNodeSize      = "node_size"
	MetaMaster        = "master"
	MetaLabels        = "labels"
	MetaDockerVersion = "docker_version"
	MetaSwarmVersion  = "swarm_version"
)

// NomadConfig configures the Nomad provisioning backend.
type NomadConfig struct {
	Address     string
	Token       string
	Region      string
	Datacenters []string

	// Image is the provisioner container run for every machine job.
	Image string
}

type jobsAPI interface {
	Register(job *nomadapi.Job, q *nomadapi.WriteOptions) (*nomadapi.JobRegisterResponse, *nomadapi.WriteMeta, error)
	Deregister(jobID string, purge bool, q *nomadapi.WriteOptions) (string, *nomadapi.WriteMeta, error)
	Info(jobID string, q *nomadapi.QueryOptions) (*nomadapi.Job, *nomadapi.QueryMeta, error)
}

// Nomad provisions one batch job per machine. The job is re-registered with
// updated meta on change and upgrade, and purged on destroy.
type Nomad struct {
	jobs   jobsAPI
	cfg    NomadConfig
	logger *zap.Logger
}

// NewNomad connects to the Nomad API described by cfg.
func NewNomad(cfg NomadConfig, logger *zap.Logger) (*Nomad, error) {
	apiCfg := nomadapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	if cfg.Token != "" {
		apiCfg.SecretID = cfg.Token
	}
	if cfg.Region != "" {
		apiCfg.Region = cfg.Region
	}

	client, err := nomadapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("nomad client: %w", err)
	}
	return newNomad(client.Jobs(), cfg, logger), nil
}

func newNomad(jobs jobsAPI, cfg NomadConfig, logger *zap.Logger) *Nomad {
	if len(cfg.Datacenters) == 0 {
		cfg.Datacenters = []string{"dc1"}
	}
	if cfg.Region == "" {
		cfg.Region = "global"
	}
	return &Nomad{jobs: jobs, cfg: cfg, logger: logger}
}

// JobID returns the Nomad job ID of the machine backing nodeID.
func JobID(nodeID string) string {
	return "machine-" + nodeID
}

func (n *Nomad) machineJob(spec MachineSpec) (*nomadapi.Job, error) {
	labels, err := json.Marshal(spec.Labels)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}

	jobID := JobID(spec.NodeID)
	job := nomadapi.NewBatchJob(jobID, jobID, n.cfg.Region, 50)
	job.Datacenters = n.cfg.Datacenters
	job.Meta = map[string]string{
		MetaAction:        "create",
		MetaNodeID:        spec.NodeID,
		MetaClusterID:     spec.ClusterID,
		MetaNodeName:      spec.Name,
		MetaRegion:        spec.Region,
		MetaNodeSize:      spec.Size,
		MetaMaster:        strconv.FormatBool(spec.Master),
		MetaLabels:        string(labels),
		MetaDockerVersion: spec.Versions.Docker,
		MetaSwarmVersion:  spec.Versions.Swarm,
	}

	task := nomadapi.NewTask("provision", "docker")
	task.Config = map[string]interface{}{
		"image": n.cfg.Image,
		"args":  []string{"${NOMAD_META_action}"},
	}
	task.Env = map[string]string{
		"SWARMCP_NODE_TOKEN": spec.Token,
	}

	tg := nomadapi.NewTaskGroup("machine", 1)
	tg.AddTask(task)
	job.AddTaskGroup(tg)
	return job, nil
}

// Create registers the machine job and returns its ID as handle.
func (n *Nomad) Create(ctx context.Context, spec MachineSpec) (string, error) {
	job, err := n.machineJob(spec)
	if err != nil {
		return "", err
	}

	resp, _, err := n.jobs.Register(job, (&nomadapi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("register machine job: %w", err)
	}

	n.logger.Info("machine job registered",
		zap.String("job_id", *job.ID),
		zap.String("eval_id", resp.EvalID),
		zap.String("node_id", spec.NodeID),
	)
	return *job.ID, nil
}

// Destroy purges the machine job. A job that no longer exists is not an error.
func (n *Nomad) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	_, _, err := n.jobs.Deregister(handle, true, (&nomadapi.WriteOptions{}).WithContext(ctx))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deregister machine job: %w", err)
	}
	n.logger.Info("machine job deregistered", zap.String("job_id", handle))
	return nil
}

// Update re-registers the machine job with the changed name and labels.
func (n *Nomad) Update(ctx context.Context, handle string, changes models.NodeChanges) error {
	if handle == "" {
		return nil
	}
	return n.reregister(ctx, handle, "update", func(meta map[string]string) error {
		if changes.Name != nil {
			meta[MetaNodeName] = *changes.Name
		}
		if changes.Labels != nil {
			labels, err := json.Marshal(changes.Labels)
			if err != nil {
				return fmt.Errorf("encode labels: %w", err)
			}
			meta[MetaLabels] = string(labels)
		}
		return nil
	})
}

// Upgrade re-registers the machine job with the target versions.
func (n *Nomad) Upgrade(ctx context.Context, handle string, versions models.Versions) error {
	if handle == "" {
		return nil
	}
	return n.reregister(ctx, handle, "upgrade", func(meta map[string]string) error {
		meta[MetaDockerVersion] = versions.Docker
		meta[MetaSwarmVersion] = versions.Swarm
		return nil
	})
}

func (n *Nomad) reregister(ctx context.Context, handle, action string, mutate func(map[string]string) error) error {
	job, _, err := n.jobs.Info(handle, (&nomadapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get machine job: %w", err)
	}
	if job.Meta == nil {
		job.Meta = make(map[string]string)
	}
	if err := mutate(job.Meta); err != nil {
		return err
	}
	job.Meta[MetaAction] = action

	resp, _, err := n.jobs.Register(job, (&nomadapi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("re-register machine job: %w", err)
	}
	n.logger.Info("machine job re-registered",
		zap.String("job_id", handle),
		zap.String("action", action),
		zap.String("eval_id", resp.EvalID),
	)
	return nil
}

func isNotFound(err error) bool {
	var coded interface{ StatusCode() int }
	return errors.As(err, &coded) && coded.StatusCode() == http.StatusNotFound
}
