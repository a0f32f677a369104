package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/akedrou/textdiff"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/pkg/resource"
)

func newGetCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get DESCRIPTOR PATH",
		Short: "Print a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.repository(cmd, args[0])
			if err != nil {
				return err
			}

			bs, err := resource.Bytes(cmd.Context(), repo.Resource(args[1]))
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(bs)
			return err
		},
	}
}

func newPropsCommand(g *globalFlags) *cobra.Command {
	var prefix string
	var expand bool

	cmd := &cobra.Command{
		Use:   "props DESCRIPTOR PATH",
		Short: "Print the resolved properties of a resource, includes applied",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.repository(cmd, args[0])
			if err != nil {
				return err
			}

			props, err := resource.Properties(cmd.Context(), repo.Resource(args[1]))
			if err != nil {
				return err
			}

			if expand {
				if props, err = resource.Expand(props); err != nil {
					return err
				}
			}
			if prefix != "" {
				props = resource.Subset(props, prefix)
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(), tablewriter.WithHeader([]string{"Key", "Value"}))
			for _, k := range slices.Sorted(maps.Keys(props)) {
				if err := table.Append([]string{k, props[k]}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only print keys under this prefix, with the prefix stripped")
	cmd.Flags().BoolVar(&expand, "expand", false, "substitute ${key} references")

	return cmd
}

func newDiffCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff DESCRIPTOR_A DESCRIPTOR_B PATH",
		Short: "Print a unified diff of one resource in two repositories",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var contents [2]string
			for i, descriptor := range args[:2] {
				repo, err := g.repository(cmd, descriptor)
				if err != nil {
					return err
				}

				bs, err := resource.Bytes(cmd.Context(), repo.Resource(args[2]))
				if err != nil {
					return err
				}
				contents[i] = string(bs)
			}

			diff := textdiff.Unified(args[0], args[1], contents[0], contents[1])
			_, err := cmd.OutOrStdout().Write([]byte(diff))
			return err
		},
	}
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bs, err := config.ReflectSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bs))
			return err
		},
	}
}
