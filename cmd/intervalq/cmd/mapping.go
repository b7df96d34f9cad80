package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage stored index mappings",
}

var mappingPutCmd = &cobra.Command{
	Use:   "put <index> <mapping.json>",
	Short: "Store or replace the mapping of an index",
	Args:  cobra.ExactArgs(2),
	RunE:  runMappingPut,
}

var mappingGetCmd = &cobra.Command{
	Use:   "get <index>",
	Short: "Print the stored mapping of an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingGet,
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored index mappings",
	Args:  cobra.NoArgs,
	RunE:  runMappingList,
}

var mappingDeleteCmd = &cobra.Command{
	Use:   "delete <index>",
	Short: "Delete the stored mapping of an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingDelete,
}

func init() {
	rootCmd.AddCommand(mappingCmd)
	mappingCmd.AddCommand(mappingPutCmd, mappingGetCmd, mappingListCmd, mappingDeleteCmd)
}

func runMappingPut(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read mapping: %w", err)
	}

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	m, err := store.Put(context.Background(), args[0], data)
	if err != nil {
		return err
	}
	logger.Info("mapping stored", zap.String("index", m.Name), zap.String("index_id", string(m.ID)))
	fmt.Fprintln(cmd.OutOrStdout(), m.ID)
	return nil
}

func runMappingGet(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	m, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	var body interface{}
	if err := json.Unmarshal([]byte(m.Mapping), &body); err != nil {
		return fmt.Errorf("stored mapping for [%s] is not valid JSON: %w", m.Name, err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

func runMappingList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	mappings, err := store.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tID\tUPDATED AT")
	for _, m := range mappings {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.ID, m.UpdatedAt)
	}
	return w.Flush()
}

func runMappingDelete(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	logger.Info("mapping deleted", zap.String("index", args[0]))
	return nil
}
