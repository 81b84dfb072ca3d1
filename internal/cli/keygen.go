// keygen.go: keygen command for symmetric keys and PEM key pairs.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	crypto "github.com/agilira/cryptex"
)

func newKeygenCmd() *cobra.Command {
	var (
		algorithm string
		bits      int
		pair      string
		rsaBits   int
		out       string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a base64 symmetric key or a PEM key pair",
		Example: `  cryptex keygen --algorithm AES --bits 256
  cryptex keygen --pair RSA --rsa-bits 3072 --out server
  cryptex keygen --pair MLKEM768`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pair == "" {
				secret, err := crypto.GenerateSecret(algorithm, bits)
				if err != nil {
					return err
				}
				defer secret.Destroy()
				encoded, err := crypto.SecretToBase64(secret)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
				return err
			}

			pub, priv, err := generatePair(pair, rsaBits)
			if err != nil {
				return err
			}
			pubPEM, err := crypto.MarshalPublicKeyPEM(pub)
			if err != nil {
				return err
			}
			privPEM, err := crypto.MarshalPrivateKeyPEM(priv)
			if err != nil {
				return err
			}
			defer crypto.Zeroize(privPEM)

			if out == "" {
				w := cmd.OutOrStdout()
				if _, err := w.Write(privPEM); err != nil {
					return err
				}
				_, err = w.Write(pubPEM)
				return err
			}
			if err := os.WriteFile(out+".pem", privPEM, 0o600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(out+".pub.pem", pubPEM, 0o644); err != nil { // #nosec G306 -- public key
				return fmt.Errorf("failed to write public key: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s.pem and %s.pub.pem\n", out, out)
			return err
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "AES", "symmetric algorithm (AES, DESede, ChaCha20-Poly1305, HmacSHA256, ...)")
	cmd.Flags().IntVar(&bits, "bits", 0, "symmetric key size in bits (0 selects the algorithm default)")
	cmd.Flags().StringVar(&pair, "pair", "", "generate a key pair: RSA, MLKEM768, Ed25519, ECDSA-P256-SHA256")
	cmd.Flags().IntVar(&rsaBits, "rsa-bits", 3072, "RSA modulus size")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write <out>.pem and <out>.pub.pem instead of stdout")
	return cmd
}

func generatePair(kind string, rsaBits int) (pub, priv any, err error) {
	switch strings.ToUpper(kind) {
	case "RSA":
		k, err := crypto.GenerateRSAKeyPair(rsaBits)
		if err != nil {
			return nil, nil, err
		}
		return &k.PublicKey, k, nil
	case "MLKEM768", "ML-KEM-768":
		pk, sk, err := crypto.GenerateMLKEMKeyPair(nil)
		if err != nil {
			return nil, nil, err
		}
		return pk, sk, nil
	case strings.ToUpper(crypto.SigEd25519), strings.ToUpper(crypto.SigECDSAP256):
		return crypto.GenerateSigningKey(kind)
	}
	return nil, nil, fmt.Errorf("unsupported key pair type %q", kind)
}
