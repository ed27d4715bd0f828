package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fumin/casscf"
)

func newCommand(stdout io.Writer) *cobra.Command {
	var configPath, chkPath string
	var verbose, dumpConfig bool
	cmd := &cobra.Command{
		Use:   "run --config casscf.yaml",
		Short: "Run a one-step CASSCF calculation",
		Long: `run reads a molecule, basis and active space from a YAML file,
computes RHF orbitals and optimizes the CASSCF wavefunction from them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := casscf.LoadConfig(configPath)
			if err != nil {
				return errors.Wrap(err, "")
			}
			if cmd.Flags().Changed("chk") {
				cfg.Chk = chkPath
			}
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			cfg.CASSCF.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			if dumpConfig {
				b, err := yaml.Marshal(cfg)
				if err != nil {
					return errors.Wrap(err, "")
				}
				if _, err := stdout.Write(b); err != nil {
					return errors.Wrap(err, "")
				}
				return nil
			}
			report, err := casscf.Run(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			return printReport(stdout, report)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "casscf.yaml", "configuration file")
	cmd.Flags().StringVar(&chkPath, "chk", "", "checkpoint file, overrides the configuration")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log micro iterations")
	cmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "print the effective configuration and exit")
	return cmd
}

func printReport(w io.Writer, r *casscf.Report) error {
	lines := []string{
		fmt.Sprintf("E(RHF) = %.10f", r.EHF),
		fmt.Sprintf("E(CASSCF) = %.10f", r.ETot),
		fmt.Sprintf("E(CAS) = %.10f", r.ECAS),
		fmt.Sprintf("converged = %v, macro %d, micro %d, JK %d", r.Converged, r.Macro, r.TotalMicro, r.TotalJK),
		fmt.Sprintf("mo_energy = %.6f", r.MoEnergy),
	}
	if r.RunID != "" {
		lines = append(lines, fmt.Sprintf("run = %s", r.RunID))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := newCommand(os.Stdout).Execute(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
