package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTopCommand(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the entities present in the most federations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			top, err := rt.top.MostFederated(context.Background(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "FEDERATIONS\tENTITYID\tNAME\tPROTOCOLS")
			for _, e := range top {
				name := e.Name["en"]
				if name == "" {
					for _, v := range e.Name {
						name = v
						break
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					len(e.Federations), e.EntityID, name,
					strings.Join(e.DisplayProtocols(), ", "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of entities to show")
	return cmd
}
