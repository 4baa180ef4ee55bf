package main

import (
	"github.com/spf13/cobra"

	"github.com/frederic-klein/yamr/internal/server"
)

func newServeCmd(o *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish the federated repository over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := o.buildRoot()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("listen") {
				listen = o.cfg.Listen
			}
			return server.New(root, o.logger).ListenAndServe(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Listen address")
	return cmd
}
