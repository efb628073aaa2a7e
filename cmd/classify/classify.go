// Package classify implements the command that classifies a single image
// without starting the server.
package classify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/conf"
)

// output is the JSON form of a result, matching the upload endpoint.
type output struct {
	File       string  `json:"file"`
	Diagnosis  string  `json:"diagnosis"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
}

// Command creates the classify command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [image...]",
		Short: "Classify skin lesion images",
		Long:  "Run the configured model on one or more image files and print the diagnosis, confidence and risk level.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := classifier.LoadModel(settings)
			defer model.Close()
			if !model.Ready() {
				return classifier.ErrModelUnavailable
			}

			for _, path := range args {
				if err := classifyFile(cmd, model, path, asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per image")

	return cmd
}

func classifyFile(cmd *cobra.Command, model *classifier.Classifier, path string, asJSON bool) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	result, err := model.ClassifyImage(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return printResult(cmd.OutOrStdout(), path, result, asJSON)
}

func printResult(w io.Writer, path string, result classifier.Result, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(output{
			File:       path,
			Diagnosis:  result.Label,
			Confidence: result.DisplayConfidence(),
			RiskLevel:  result.RiskLevel,
		})
	}
	_, err := fmt.Fprintf(w, "%s\n  Diagnosis:  %s\n  Confidence: %.2f%%\n  Risk level: %s\n",
		path, result.Label, result.DisplayConfidence(), result.RiskLevel)
	return err
}
