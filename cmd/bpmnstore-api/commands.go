package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/config"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/definitions"
	"github.com/spf13/cobra"
)

type persistOutput struct {
	Result     string                        `json:"result"`
	Definition definitions.ProcessDefinition `json:"definition"`
}

type tokenOutput struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (a *application) newPersistCommand() *cobra.Command {
	var noOverwrite bool
	cmd := &cobra.Command{
		Use:   "persist <name> <file>",
		Short: "Store a BPMN definition from a file (use - for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := definitions.NewName(args[0])
			if err != nil {
				return err
			}
			xml, err := readPayload(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}

			rt, err := a.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			outcome, err := rt.definitions.Persist(cmd.Context(), name, xml, !noOverwrite)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), persistOutput{
				Result:     string(outcome.Result),
				Definition: outcome.Definition,
			})
		},
	}
	cmd.Flags().BoolVar(&noOverwrite, "no-overwrite", false, "Fail if a revision already exists for the name")
	return cmd
}

func (a *application) newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the current revision of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := definitions.NewName(args[0])
			if err != nil {
				return err
			}
			rt, err := a.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			current, err := rt.definitions.GetCurrent(cmd.Context(), name)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), current)
		},
	}
}

func (a *application) newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <name>",
		Short: "Print every revision of a definition, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := definitions.NewName(args[0])
			if err != nil {
				return err
			}
			rt, err := a.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			history, err := rt.definitions.GetHistory(cmd.Context(), name)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), history)
		},
	}
}

func (a *application) newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a service token for callers of the mutating routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(a.viper)
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tokenOutput{
				AccessToken: token,
				ExpiresIn:   expiresIn,
				TokenType:   "Bearer",
			})
		},
	}
}

func readPayload(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		payload, err := io.ReadAll(stdin)
		return string(payload), err
	}
	payload, err := os.ReadFile(path)
	return string(payload), err
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
