package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bannerforge",
		Short: "Marketing banner generation from product images",
		Long: `Bannerforge turns an uploaded product image and a free-form description
into marketing banners using an image-editing model.

It serves a JSON API and an htmx web interface, and ships client commands
for scripting against a running server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// secrets may come from a local .env file
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newBannersCmd())

	return cmd
}
