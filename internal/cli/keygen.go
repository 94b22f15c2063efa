package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shaiso/Dagon/internal/worker"
)

// NewKeygenCmd создаёт команду keygen: ключ ed25519 для удалённых задач.
func NewKeygenCmd(env *Env) *cobra.Command {
	var (
		out            string
		comment        string
		force          bool
		authorize      bool
		authorizedKeys string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 key pair for remote tasks",
		Example: `  dagon keygen --out ~/.dagon/id_ed25519
  dagon keygen --out ~/.dagon/id_ed25519 --authorize`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pubPath := out + ".pub"
			if !force {
				for _, p := range []string{out, pubPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s already exists (use --force to overwrite)", p)
					} else if !errors.Is(err, os.ErrNotExist) {
						return err
					}
				}
			}

			kp, err := worker.GenerateKeyPair(comment)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return fmt.Errorf("create key dir: %w", err)
			}
			if err := os.WriteFile(out, kp.PrivatePEM, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(pubPath, []byte(kp.Authorized+"\n"), 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			env.Logger.Debug("key pair written", "private", out, "public", pubPath)

			if authorize {
				local := worker.NewLocalBackend(worker.LocalConfig{
					PublicKeyPath:      pubPath,
					AuthorizedKeysPath: authorizedKeys,
					Logger:             env.Logger,
				})
				key, err := local.PublicKey(cmd.Context())
				if err != nil {
					return err
				}
				res, err := local.AddPublicKey(cmd.Context(), key)
				if err != nil {
					return err
				}
				if res.Code != 0 {
					return fmt.Errorf("authorize key: %s", res.Message)
				}
			}

			if env.Out.JSONMode() {
				return env.Out.JSON(map[string]any{
					"private_key": out,
					"public_key":  pubPath,
					"authorized":  kp.Authorized,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp.Authorized)
			env.Out.Success("Key pair written to %s and %s", out, pubPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Private key path (public key goes to <out>.pub)")
	cmd.Flags().StringVar(&comment, "comment", "dagon", "Key comment")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")
	cmd.Flags().BoolVar(&authorize, "authorize", false, "Append the public key to local authorized_keys")
	cmd.Flags().StringVar(&authorizedKeys, "authorized-keys", "", "authorized_keys path (default ~/.ssh/authorized_keys)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
