package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/upb/llm-relay/services"
)

const defaultExpiry = 10 * time.Hour

func newRootCommand(getenv func(string) string) *cobra.Command {
	var username string
	var expires time.Duration

	cmd := &cobra.Command{
		Use:           "gentoken",
		Short:         "Print a signed access token",
		Long:          "Signs an access token with SECRET_KEY so the API can be called without logging in.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := getenv("SECRET_KEY")
			if secret == "" {
				return errors.New("SECRET_KEY is not set")
			}
			if expires <= 0 {
				return fmt.Errorf("--expires must be positive, got %s", expires)
			}

			method, err := signingMethod(getenv("ALGORITHM"))
			if err != nil {
				return err
			}

			if username == "" {
				username = randomUsername()
			}

			token, expiresAt, err := services.SignToken(method, []byte(secret), username, time.Now(), expires)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "username: %s\n", username)
			fmt.Fprintf(out, "expires:  %s\n", expiresAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "token:    %s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Token subject (default: random testuser-NNNNN)")
	cmd.Flags().DurationVarP(&expires, "expires", "e", defaultExpiry, "Token lifetime")

	return cmd
}

// signingMethod resolves an HMAC algorithm name, defaulting to HS256
func signingMethod(alg string) (jwt.SigningMethod, error) {
	if alg == "" {
		alg = "HS256"
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported ALGORITHM %q", alg)
	}
	return method, nil
}

func randomUsername() string {
	return fmt.Sprintf("testuser-%05d", rand.IntN(90000)+10000)
}
