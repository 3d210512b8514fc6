package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/scorer"
)

var (
	trainInput  string
	trainOutput string
	trainEpochs int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the learned confidence model from labeled samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := readSamples(trainInput)
		if err != nil {
			return err
		}

		m, err := scorer.Train(samples, scorer.TrainOptions{Epochs: trainEpochs})
		if err != nil {
			return err
		}

		out := trainOutput
		if out == "" {
			out = cfg.Scorer.ModelPath
		}
		if out == "" {
			return eris.New("no output path: pass --out or set scorer.model_path")
		}
		if err := scorer.SaveModel(m, out); err != nil {
			return err
		}

		zap.L().Info("model trained",
			zap.Int("samples", m.Samples),
			zap.String("path", out),
		)
		fmt.Printf("trained on %d samples, wrote %s\n", m.Samples, out)
		return nil
	},
}

func readSamples(path string) ([]scorer.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open samples %s", path)
	}
	defer f.Close()

	var samples []scorer.Sample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s scorer.Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, eris.Wrapf(err, "parse sample line %d", line)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read samples %s", path)
	}
	return samples, nil
}

func init() {
	trainCmd.Flags().StringVar(&trainInput, "input", "", "path to labeled JSONL samples (required)")
	trainCmd.Flags().StringVar(&trainOutput, "out", "", "model output path (default from config)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "training epochs (default 400)")
	trainCmd.MarkFlagRequired("input") //nolint:errcheck
	rootCmd.AddCommand(trainCmd)
}
