package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencamphq/campd/internal/logging"
	"github.com/opencamphq/campd/internal/provider"
)

// NewProvidersCmd constructs the `campd providers` command, which reports
// which external providers the current configuration makes available.
func NewProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show which external providers are configured",
		Long: `Check the current environment and report, per provider type, whether
campd can construct a working client from it. Useful for verifying a
deployment before starting the server.

Credentials are never printed; only presence and validity of the
configuration is reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			registry := buildRegistry(log)

			known := []provider.Type{
				provider.TypeVectorStore,
				provider.TypeObjectStorage,
				provider.TypeMail,
			}
			for _, t := range known {
				status := "unavailable"
				if p := registry.Get(ctx, t); p != nil {
					status = fmt.Sprintf("available (%s)", p.Name())
				}
				fmt.Printf("%-14s %s\n", t, status)
			}
			return nil
		},
	}
}
