package main

import (
	"encoding/json"
	"fmt"
	"hearcheck-go/internal/screening"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type simulateOptions struct {
	protocolFile string
	left         float64
	right        float64
	script       string
	trace        bool
}

func newSimulateCmd(projectRoot *string) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a screening session offline and print the result",
		Long: `simulate drives one screening session without a server. By default a
virtual listener hears every tone at or above its per-ear threshold. With
--script the answers are taken in order from a string of y/n characters;
if the script runs out first the session is closed as abandoned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			protocol, err := loadProtocol(*projectRoot, opts.protocolFile)
			if err != nil {
				return err
			}
			return runSimulation(cmd.OutOrStdout(), protocol, opts)
		},
	}
	cmd.Flags().StringVar(&opts.protocolFile, "protocol", "", "YAML protocol file (defaults to the standard protocol)")
	cmd.Flags().Float64Var(&opts.left, "left", 20, "threshold of the simulated left ear")
	cmd.Flags().Float64Var(&opts.right, "right", 20, "threshold of the simulated right ear")
	cmd.Flags().StringVar(&opts.script, "script", "", "answers as y/n characters, used instead of the simulated ears")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "print every presentation")
	return cmd
}

type responder func(p *screening.Presentation) (heard, ok bool)

func thresholdResponder(left, right float64) responder {
	return func(p *screening.Presentation) (bool, bool) {
		if p.Ear == screening.EarLeft {
			return p.Level >= left, true
		}
		return p.Level >= right, true
	}
}

func scriptResponder(script string) (responder, error) {
	answers := make([]bool, 0, len(script))
	for i, ch := range strings.ToLower(script) {
		switch ch {
		case 'y':
			answers = append(answers, true)
		case 'n':
			answers = append(answers, false)
		case ' ', ',':
		default:
			return nil, fmt.Errorf("invalid answer %q at position %d", ch, i)
		}
	}
	return func(*screening.Presentation) (bool, bool) {
		if len(answers) == 0 {
			return false, false
		}
		heard := answers[0]
		answers = answers[1:]
		return heard, true
	}, nil
}

func runSimulation(out io.Writer, protocol screening.Protocol, opts simulateOptions) error {
	respond := thresholdResponder(opts.left, opts.right)
	if opts.script != "" {
		var err error
		if respond, err = scriptResponder(opts.script); err != nil {
			return err
		}
	}

	sess, err := screening.Start(protocol)
	if err != nil {
		return err
	}
	for !sess.Completed() {
		p, _ := sess.Peek()
		heard, ok := respond(p)
		if !ok {
			sess.ForceComplete()
			break
		}
		ack, err := sess.SubmitResponse(heard)
		if err != nil {
			return err
		}
		if opts.trace {
			fmt.Fprintf(out, "%5d Hz %-5s level %6.1f heard=%t", p.Frequency, p.Ear, p.Level, heard)
			if ack.ItemCompleted {
				fmt.Fprintf(out, "  threshold %.1f (%s)", ack.Threshold, ack.Rule)
			}
			fmt.Fprintln(out)
		}
	}

	res, err := sess.Result()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
