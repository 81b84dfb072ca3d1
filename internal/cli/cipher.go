// cipher.go: encrypt and decrypt commands.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEncryptCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Encrypt a string (argument or stdin) and print the envelope",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			out, err := runCipher(o, in, true)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func newDecryptCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [envelope]",
		Short: "Decrypt an envelope (argument or stdin) and print the plaintext",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			out, err := runCipher(o, in, false)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func runCipher(o *options, input string, encrypt bool) (string, error) {
	codec, err := o.codec()
	if err != nil {
		return "", err
	}
	env, release, err := o.envelope()
	if err != nil {
		return "", err
	}
	defer release()

	text, err := env.WithCodec(codec)
	if err != nil {
		return "", err
	}
	if encrypt {
		return text.EncryptString(input)
	}
	return text.DecryptString(input)
}
