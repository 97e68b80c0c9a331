package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/client"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

type clientFlags struct {
	server string
	userID string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", defaultServerURL, "Base URL of a running bannerforge server")
	cmd.Flags().StringVarP(&f.userID, "user", "u", os.Getenv("BANNERFORGE_USER"), "User id sent as identity (defaults to $BANNERFORGE_USER)")
}

func (f *clientFlags) client() (*client.Client, error) {
	if f.userID == "" {
		return nil, errors.New("a user id is required, pass --user or set BANNERFORGE_USER")
	}
	return client.New(f.server), nil
}

func newUploadCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a reference image and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			url, err := c.Upload(cmd.Context(), flags.userID, filepath.Base(args[0]), data)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		flags         clientFlags
		imageURL      string
		promptDetails string
		aspectRatio   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate banners from a reference image",
		Example: `  bannerforge generate --user u1 \
    --image https://cdn.example.com/u1/logo.png \
    --details '{"design_type":"summer sale"}' --aspect landscape`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			var details banner.PromptDetails
			if err := json.Unmarshal([]byte(promptDetails), &details); err != nil {
				return errors.New("invalid JSON format in prompt details")
			}

			result, banners, err := c.GenerateAndRefresh(cmd.Context(), banner.GenerationRequest{
				UserID:        flags.userID,
				PromptDetails: details,
				InputImageURL: imageURL,
				AspectRatio:   banner.AspectRatio(aspectRatio),
			})
			if err != nil && result == nil {
				return errors.New(client.FailureMessage(err))
			}

			out := cmd.OutOrStdout()
			for _, url := range result.URLs {
				fmt.Fprintln(out, url)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d banner(s) in your gallery\n", len(banners))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&imageURL, "image", "i", "", "URL of the uploaded reference image")
	cmd.Flags().StringVarP(&promptDetails, "details", "d", "{}", "Prompt details as a JSON object")
	cmd.Flags().StringVarP(&aspectRatio, "aspect", "a", string(banner.Square), "Aspect ratio: square, landscape or portrait")

	return cmd
}

func newBannersCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "banners",
		Short: "List your generated banners, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			banners, err := c.ListOwnBanners(cmd.Context(), flags.userID)
			if err != nil {
				return fmt.Errorf("failed to fetch banners: %w", err)
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(banners)
		},
	}
	flags.register(cmd)

	return cmd
}
