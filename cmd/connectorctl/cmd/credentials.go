package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/internal/credentials"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// credentialView is what connectorctl prints for a record. Token values stay hidden.
type credentialView struct {
	Key        string     `yaml:"key"`
	Provider   string     `yaml:"provider"`
	ClientID   string     `yaml:"client_id,omitempty"`
	Username   string     `yaml:"username,omitempty"`
	UpdatedAt  time.Time  `yaml:"updated_at"`
	TokenType  string     `yaml:"token_type,omitempty"`
	Expiry     *time.Time `yaml:"expiry,omitempty"`
	Expired    bool       `yaml:"expired"`
	HasRefresh bool       `yaml:"has_refresh_token"`
}

func newCredentialView(record *domain.CredentialRecord, tok *domain.OAuthToken) credentialView {
	v := credentialView{
		Key:        record.Key,
		Provider:   record.Provider,
		ClientID:   record.ClientID,
		Username:   record.Username,
		UpdatedAt:  record.UpdatedAt,
		HasRefresh: record.RefreshToken != nil && *record.RefreshToken != "",
	}
	if tok != nil {
		v.TokenType = tok.TokenType
		v.Expired = tok.HasExpired()
		if !tok.Expiry.IsZero() {
			exp := tok.Expiry
			v.Expiry = &exp
		}
	}
	return v
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(map[string][]string{"providers": a.service.Providers()})
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}
}

func newCredentialsCmd(a *app) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:     "credentials",
		Short:   "Manage stored credentials",
		Aliases: []string{"creds"},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credential keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lister, ok := a.stores.Credentials.(domain.CredentialLister)
			if !ok {
				return errors.New("the configured storage backend cannot list credentials")
			}
			keys, err := lister.ListCredentials(cmd.Context())
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(a.out, "No credentials stored.")
				return nil
			}
			for _, key := range keys {
				fmt.Fprintln(a.out, key)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show KEY",
		Short: "Show a stored credential without its token values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := a.stores.Credentials.GetCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tok, err := credentials.Deserialize(record)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(newCredentialView(record, tok))
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh KEY",
		Short: "Refresh an expired access token with its refresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			record, err := a.stores.Credentials.GetCredential(ctx, args[0])
			if err != nil {
				return err
			}
			tok, err := a.connector.Token(ctx, record.Provider, record.Key)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Credential %s is valid until %s\n", record.Key, tok.Expiry.Format(time.RFC3339))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete KEY",
		Short:   "Delete a stored credential",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.stores.Credentials.DeleteCredential(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Credential %s deleted.\n", args[0])
			return nil
		},
	}

	credentialsCmd.AddCommand(listCmd, showCmd, refreshCmd, deleteCmd)
	return credentialsCmd
}
