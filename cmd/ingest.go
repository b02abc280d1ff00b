package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/submit"
	"github.com/plateful/plateful/internal/vision"
)

var (
	ingestImages []string
	ingestMode   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [input]",
	Short: "Ingest one recipe from a URL, raw text, or photos",
	Long:  "Runs a single submission through the full pipeline and prints the result as JSON. Pass free text or a URL as the argument, or --image flags for photographed pages (in page order).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(ingestImages) > 0 {
			pages, err := loadPages(ingestImages)
			if err != nil {
				return err
			}
			res, err := env.Pipeline.SubmitImages(ctx, pages)
			if err != nil {
				return err
			}
			return printJSON(res)
		}

		if len(args) == 0 {
			return eris.New("provide an input argument or at least one --image")
		}

		// Route through the state machine so CLI submissions get the same
		// single-result contract the app does.
		machine := submit.NewMachine(env.Pipeline.SubmitText)
		res, accepted := machine.Submit(ctx, args[0], ingestMode)
		if !accepted {
			return eris.New("submission rejected: another is in flight")
		}
		return printJSON(res)
	},
}

func loadPages(paths []string) ([]vision.Page, error) {
	pages := make([]vision.Page, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read image %s", path)
		}
		pages = append(pages, vision.Page{MIMEType: mimeForPath(path), Data: data})
		zap.L().Debug("loaded page", zap.String("path", path), zap.Int("bytes", len(data)))
	}
	return pages, nil
}

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestImages, "image", nil, "photographed recipe page (repeatable, page order)")
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "", "restrict the input kind: url or name")
	rootCmd.AddCommand(ingestCmd)
}
