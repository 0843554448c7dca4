package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"swarmcp.io/cmd/swarmcp-agent/agent"
)

var infosCmd = &cobra.Command{
	Use:   "infos [node-token]",
	Short: "Print the configuration the control plane holds for this node",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		client, err := agent.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		infos, err := client.Infos(cmd.Context())
		if err != nil {
			return err
		}

		out := yaml.NewEncoder(cmd.OutOrStdout())
		out.SetIndent(2)
		defer out.Close()
		return out.Encode(map[string]any{
			"name":     infos.Name,
			"master":   infos.Master,
			"strategy": string(infos.Strategy),
			"docker":   infos.Versions.Docker,
			"swarm":    infos.Versions.Swarm,
			"labels":   map[string]any(infos.Labels),
		})
	},
}

func init() {
	rootCmd.AddCommand(infosCmd)
}
