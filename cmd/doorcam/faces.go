package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/doorcam/internal/face"
	"github.com/ayusman/doorcam/internal/logger"
)

var encodeFaceCmd = &cobra.Command{
	Use:   "encode-face <image> <name>",
	Short: "Add a known person to the face gallery",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, name := args[0], args[1]

		emb, err := face.NewDlibEmbedder(cfg.ModelsDir)
		if err != nil {
			return err
		}
		defer emb.Close()

		vec, err := emb.EmbedFile(image)
		if err != nil {
			return fmt.Errorf("%s: %w", image, err)
		}

		path, err := face.SaveEncoding(cfg.KnownFacesDir, name, vec)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved face encoding for %s to %s\n", name, path)
		return nil
	},
}

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage the known face gallery",
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known persons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gallery, err := face.LoadGallery(cfg.KnownFacesDir, logger.With("faces"))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(gallery) == 0 {
			fmt.Fprintf(out, "No known faces in %s\n", cfg.KnownFacesDir)
			return nil
		}
		for _, kf := range gallery {
			fmt.Fprintln(out, kf.Name)
		}
		return nil
	},
}

var facesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Forget a known person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := face.RemoveEncoding(cfg.KnownFacesDir, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	facesCmd.AddCommand(facesListCmd, facesRemoveCmd)
}
