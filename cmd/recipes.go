package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/persist"
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Inspect and edit cached recipes",
}

var recipesListLimit int

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached recipe records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListRecords(ctx, recipesListLimit, 0)
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var recipesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one cached recipe record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var (
	forkChangeDesc string
	forkPointerID  string
	forkEditedFile string
)

var recipesForkCmd = &cobra.Command{
	Use:   "fork <parent-id>",
	Short: "Fork a recipe into a user-owned copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var edited *model.CanonicalRecipe
		if forkEditedFile != "" {
			data, err := os.ReadFile(forkEditedFile)
			if err != nil {
				return eris.Wrap(err, "read edited recipe file")
			}
			edited = &model.CanonicalRecipe{}
			if err := json.Unmarshal(data, edited); err != nil {
				return eris.Wrap(err, "parse edited recipe file")
			}
		}

		fork, err := env.Pipeline.Fork(ctx, args[0], edited, forkChangeDesc, forkPointerID)
		if err != nil {
			return err
		}
		return printJSON(fork)
	},
}

var variationKind string

var recipesVariationCmd = &cobra.Command{
	Use:   "variation <parent-id>",
	Short: "Generate a vegetarian, gluten-free, or lower-fat variation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Variation(ctx, args[0], model.VariationKind(variationKind))
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var recipesReembedCmd = &cobra.Command{
	Use:   "reembed <id>",
	Short: "Recompute the similarity vector for an original record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Store.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		if rec.IsUserModified() {
			return eris.New("forks are never embedded; reembed the original")
		}
		// env.Close waits for the backfill before the store shuts down.
		env.Saver.Refresh(rec.ID, rec.Data)
		zap.L().Info("embedding backfill scheduled", zap.String("id", rec.ID))
		return nil
	},
}

var patchFile string

var recipesPatchCmd = &cobra.Command{
	Use:   "patch <id>",
	Short: "Apply a partial update to a forked recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(patchFile)
		if err != nil {
			return eris.Wrap(err, "read patch file")
		}
		var req persist.PatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return eris.Wrap(err, "parse patch file")
		}

		rec, err := env.Pipeline.Patch(ctx, args[0], req)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

func init() {
	recipesListCmd.Flags().IntVar(&recipesListLimit, "limit", 20, "max records to list")
	recipesForkCmd.Flags().StringVar(&forkChangeDesc, "change", "", "change description")
	recipesForkCmd.Flags().StringVar(&forkPointerID, "pointer", "", "saved pointer id to re-point at the fork")
	recipesForkCmd.Flags().StringVar(&forkEditedFile, "edited", "", "JSON file with the edited recipe")
	recipesVariationCmd.Flags().StringVar(&variationKind, "kind", "vegetarian", "variation kind: vegetarian, gluten_free, lower_fat")
	recipesPatchCmd.Flags().StringVar(&patchFile, "file", "", "JSON file with the partial update")
	_ = recipesPatchCmd.MarkFlagRequired("file")

	recipesCmd.AddCommand(recipesListCmd, recipesGetCmd, recipesForkCmd, recipesVariationCmd, recipesPatchCmd, recipesReembedCmd)
	rootCmd.AddCommand(recipesCmd)
}
