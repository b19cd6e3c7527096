package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/fedmet/internal/domain/services"
)

func newFederationCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "federation",
		Short: "Federation management commands",
		Long:  "Commands for managing federations in the fedmet catalog",
	}

	cmd.AddCommand(newFederationCreateCommand(configPath))
	cmd.AddCommand(newFederationUpdateCommand(configPath))
	cmd.AddCommand(newFederationDeleteCommand(configPath))
	cmd.AddCommand(newFederationListCommand(configPath))
	cmd.AddCommand(newFederationPurgeOrphansCommand(configPath))

	return cmd
}

func federationInputFlags(cmd *cobra.Command, input *services.FederationInput, interfed *bool) {
	cmd.Flags().StringVar(&input.Type, "type", "", "Federation type (hub-and-spoke, mesh)")
	cmd.Flags().StringVar(&input.URL, "url", "", "Federation home page URL")
	cmd.Flags().StringVar(&input.MetadataURL, "metadata-url", "", "Metadata document URL or file path")
	cmd.Flags().StringVar(&input.RegistrationAuthority, "registration-authority", "", "Registration authority URI")
	cmd.Flags().StringVar(&input.Country, "country", "", "Country code")
	cmd.Flags().BoolVar(interfed, "interfederation", false, "Mark as an interfederation")
}

func newFederationCreateCommand(configPath *string) *cobra.Command {
	var input services.FederationInput
	var interfed bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a federation and run its first refresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			input.Name = args[0]
			if cmd.Flags().Changed("interfederation") {
				input.IsInterfederation = &interfed
			}
			fed, err := rt.federations.Create(context.Background(), input)
			if err != nil {
				return err
			}
			fmt.Printf("Created federation %s (slug %s)\n", fed.Name, fed.Slug)
			return nil
		},
	}
	federationInputFlags(cmd, &input, &interfed)
	return cmd
}

func newFederationUpdateCommand(configPath *string) *cobra.Command {
	var input services.FederationInput
	var interfed bool

	cmd := &cobra.Command{
		Use:   "update <slug>",
		Short: "Update a federation's settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if cmd.Flags().Changed("interfederation") {
				input.IsInterfederation = &interfed
			}
			fed, err := rt.federations.Update(context.Background(), args[0], input)
			if err != nil {
				return err
			}
			fmt.Printf("Updated federation %s (slug %s)\n", fed.Name, fed.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "New federation name")
	federationInputFlags(cmd, &input, &interfed)
	return cmd
}

func newFederationDeleteCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a federation and purge entities it orphans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.federations.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted federation %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func newFederationListCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all federations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			feds, err := rt.federations.List(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tSOURCE\tLAST REFRESH")
			for _, fed := range feds {
				last := "never"
				if fed.MetadataUpdate != nil {
					last = fed.MetadataUpdate.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fed.Slug, fed.Name, fed.MetadataURL, last)
			}
			return w.Flush()
		},
	}
	return cmd
}

func newFederationPurgeOrphansCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-orphans",
		Short: "Delete entities that belong to no federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			purged, err := rt.federations.PurgeOrphans(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d orphaned entities\n", purged)
			return nil
		},
	}
	return cmd
}
