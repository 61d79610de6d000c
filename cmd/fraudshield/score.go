package main

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hed1ad/fraudshield/pkg/artifacts"
	"github.com/hed1ad/fraudshield/pkg/intake"
	fsio "github.com/hed1ad/fraudshield/pkg/io"
	"github.com/hed1ad/fraudshield/pkg/io/csv"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

type scoreParams struct {
	input  string
	output string
	format string
}

func newScoreCmd(g *globalParams) *cobra.Command {
	p := &scoreParams{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a CSV file of transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(g, p, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&p.input, "input", "i", "", "CSV file to score (required)")
	cmd.Flags().StringVarP(&p.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&p.format, "format", "f", formatJSON, "Output format [json, csv]")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runScore writes to stdout unless an output file is set. The file is created
// only once the batch has been scored.
func runScore(g *globalParams, p *scoreParams, stdout io.Writer) (err error) {
	format := strings.ToLower(p.format)
	if format != formatJSON && format != formatCSV {
		return errors.Errorf("unsupported format %q, want json or csv", p.format)
	}

	set, err := artifacts.Load(g.cfg.Models)
	if err != nil {
		return errors.Wrap(err, "error loading artifacts")
	}
	pl, err := set.Pipeline()
	if err != nil {
		return err
	}

	r, err := csv.Open(p.input)
	if err != nil {
		return err
	}
	defer r.Close()

	raw, err := r.Read()
	if err != nil {
		return errors.Wrapf(err, "error reading %s", p.input)
	}
	t, err := intake.Sanitize(raw)
	if err != nil {
		return err
	}

	res, err := pl.Run(t)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"input":      p.input,
		"total":      res.Summary.TotalTransactions,
		"frauds":     res.Summary.PredictedFrauds,
		"percentage": res.Summary.FraudPercentage,
	}).Info("batch scored")

	out := stdout
	if p.output != "" {
		f, cerr := os.Create(p.output)
		if cerr != nil {
			return errors.Wrapf(cerr, "error creating %s", p.output)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = errors.Wrapf(cerr, "error closing %s", p.output)
			}
		}()
		out = f
	}

	var w fsio.Writer = csv.NewWriter(out)
	if format == formatJSON {
		w = fsio.NewJSONWriter(out, p.output == "")
	}
	return w.Write(res)
}
