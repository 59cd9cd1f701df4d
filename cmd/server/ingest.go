package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk, embed and index a text file",
	Long:  `Reads a UTF-8 .txt file and adds its chunks to a collection. The collection defaults to the file's base name.`,
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

var (
	ingestFile       string
	ingestCollection string
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "Text file to ingest")
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "Target collection id")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(ingestFile)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.Ingestor.IngestFile(cmd.Context(), ingestFile, f, ingestCollection)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks into collection %s\n", res.ChunkCount, res.CollectionID)
	return nil
}
