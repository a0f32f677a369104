package main

import (
	"github.com/spf13/cobra"

	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/pkg/repository"
	"github.com/cyclopsgroup/gitcon/pkg/router"
)

type globalFlags struct {
	logging        logging.Config
	githubEndpoint string
}

func (g *globalFlags) logger(cmd *cobra.Command) *logging.Logger {
	cfg := g.logging
	cfg.Output = cmd.ErrOrStderr()
	return logging.NewLogger(cfg)
}

func (g *globalFlags) routerOptions(logger *logging.Logger) []router.Option {
	opts := []router.Option{router.WithLogger(logger)}
	if g.githubEndpoint != "" {
		opts = append(opts, router.WithGitHubEndpoint(g.githubEndpoint))
	}
	return opts
}

func (g *globalFlags) repository(cmd *cobra.Command, descriptor string) (repository.Repository, error) {
	return router.Parse(descriptor, g.routerOptions(g.logger(cmd))...)
}

func newRootCommand() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:          "gitcon",
		Short:        "Read and synchronize configuration repositories",
		SilenceUsage: true,
	}

	g.logging.AddFlags(root.PersistentFlags())
	root.PersistentFlags().StringVar(&g.githubEndpoint, "github-endpoint", "", "GitHub GraphQL endpoint (default https://api.github.com/graphql)")

	root.AddCommand(
		newGetCommand(&g),
		newPropsCommand(&g),
		newDiffCommand(&g),
		newSyncCommand(&g),
		newSchemaCommand(),
	)

	return root
}
