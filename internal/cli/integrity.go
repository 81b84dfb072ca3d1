// integrity.go: digest and verify commands.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	crypto "github.com/agilira/cryptex"
)

type digestOptions struct {
	algorithm  string
	saltSize   int
	iterations int
}

func addDigestFlags(fs *pflag.FlagSet, d *digestOptions) {
	fs.StringVarP(&d.algorithm, "algorithm", "a", crypto.DigestSHA256, "digest or MAC algorithm (SHA-256, SHA3-256, HmacSHA256, ...)")
	fs.IntVar(&d.saltSize, "digest-salt", 0, "salt size in bytes for unkeyed digests")
	fs.IntVar(&d.iterations, "digest-iterations", 1, "hash iterations for unkeyed digests")
}

func newDigestCmd(o *options) *cobra.Command {
	d := &digestOptions{}
	cmd := &cobra.Command{
		Use:   "digest [message]",
		Short: "Compute a digest or MAC envelope of a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			text, release, err := o.digester(d)
			if err != nil {
				return err
			}
			defer release()
			out, err := text.DigestString(msg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	addDigestFlags(cmd.Flags(), d)
	return cmd
}

func newVerifyCmd(o *options) *cobra.Command {
	d := &digestOptions{}
	cmd := &cobra.Command{
		Use:   "verify <message> <digest>",
		Short: "Check a digest or MAC envelope against a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, release, err := o.digester(d)
			if err != nil {
				return err
			}
			defer release()
			ok, err := text.Matches(args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("digest does not match")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return err
		},
	}
	addDigestFlags(cmd.Flags(), d)
	return cmd
}

// digester builds the integrity envelope selected by the flags.
func (o *options) digester(d *digestOptions) (*crypto.TextDigester, func(), error) {
	codec, err := o.codec()
	if err != nil {
		return nil, nil, err
	}
	b := crypto.NewIntegrityEnvelopeBuilder().Algorithm(d.algorithm)
	release := func() {}

	if strings.HasPrefix(strings.ToLower(d.algorithm), "hmac") {
		switch {
		case o.hasSymmetricKey():
			secret, err := o.secret(d.algorithm)
			if err != nil {
				return nil, nil, err
			}
			b.Key(secret)
			release = secret.Destroy
		case o.passwordEnv != "":
			pw, err := o.password()
			if err != nil {
				return nil, nil, err
			}
			defer crypto.Zeroize(pw)
			b.Password(pw, o.params())
		default:
			return nil, nil, errors.New("MAC algorithms need --key, --key-file or --password-env")
		}
	} else {
		b.Salt(d.saltSize, d.iterations)
	}

	env, err := b.Build()
	if err != nil {
		release()
		return nil, nil, err
	}
	text, err := env.WithCodec(codec)
	if err != nil {
		env.Destroy()
		release()
		return nil, nil, err
	}
	return text, func() {
		env.Destroy()
		release()
	}, nil
}
