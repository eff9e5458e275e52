package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/secbench/internal/config"
	"github.com/stellarlinkco/secbench/internal/llm"
	"github.com/stellarlinkco/secbench/internal/store"
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "secbench",
		Short:         "Evaluate LLMs on cybersecurity multiple-choice datasets",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newRetryCmd(st))
	root.AddCommand(newRecomputeCmd(st))
	root.AddCommand(newTestsCmd(st))
	root.AddCommand(newBenchCmd(st))
	return root
}

func loadConfigPreRun(st *cliState) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(st.configPath)
		if err != nil {
			return err
		}
		st.cfg = cfg
		return nil
	}
}

func (st *cliState) openStore() (store.Store, error) {
	if st == nil || st.cfg == nil {
		return nil, errors.New("secbench: missing config")
	}
	return store.Open(st.cfg)
}

func (st *cliState) providerClient(model *store.Model, keyFlag string) (llm.Client, error) {
	if st == nil || st.cfg == nil {
		return nil, errors.New("secbench: missing config")
	}

	provider := ""
	if model != nil {
		provider = strings.TrimSpace(model.Provider)
	}
	if provider == "" {
		provider = st.cfg.Provider.Name
	}

	apiKey := strings.TrimSpace(keyFlag)
	if apiKey == "" {
		apiKey = st.cfg.Provider.APIKey
	}
	if apiKey == "" {
		return nil, errors.New("secbench: missing provider api key: pass --provider-key or configure one")
	}

	return llm.NewClient(provider, apiKey, st.cfg.Provider.BaseURL)
}
