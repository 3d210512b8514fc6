package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/chemsafe-cli/internal/export"
)

var (
	exportMatrixPath string
	exportFieldsPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current matrix to xlsx and reconciled fields to csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportMatrixPath == "" && exportFieldsPath == "" {
			return eris.New("nothing to export: pass --matrix and/or --fields")
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if exportMatrixPath != "" {
			decisions, err := st.LatestDecisions(ctx)
			if err != nil {
				return err
			}
			if err := export.MatrixXLSX(decisions, exportMatrixPath); err != nil {
				return err
			}
			fmt.Printf("wrote %d decisions to %s\n", len(decisions), exportMatrixPath)
		}

		if exportFieldsPath != "" {
			fields, err := st.AllReconciledFields(ctx)
			if err != nil {
				return err
			}
			f, err := os.Create(exportFieldsPath)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportFieldsPath)
			}
			defer f.Close()
			if err := export.FieldsCSV(fields, f); err != nil {
				return err
			}
			fmt.Printf("wrote %d fields to %s\n", len(fields), exportFieldsPath)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportMatrixPath, "matrix", "", "write the decision matrix workbook to this path")
	exportCmd.Flags().StringVar(&exportFieldsPath, "fields", "", "write reconciled fields csv to this path")
	rootCmd.AddCommand(exportCmd)
}
