// config.go: config commands over SecureConfig files (YAML or dotenv).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	crypto "github.com/agilira/cryptex"
)

func newConfigCmd(o *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write ENC(...) values in configuration files",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "YAML (.yaml, .yml) or dotenv configuration file")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a configuration value, decrypting ENC(...) values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, release, err := o.secureConfig(cmd)
			if err != nil {
				return err
			}
			defer release()
			if err := loadConfigFile(cfg, file); err != nil {
				return err
			}
			v, ok, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %s not found in %s", args[0], file)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}

	encryptValue := &cobra.Command{
		Use:   "encrypt-value [plaintext]",
		Short: "Print a value in ENC(...) form for pasting into a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			cfg, release, err := o.secureConfig(cmd)
			if err != nil {
				return err
			}
			defer release()
			v, err := cfg.EncryptValue(in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}

	dump := &cobra.Command{
		Use:   "dotenv",
		Short: "Print every key of the file in dotenv syntax, values left encrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, release, err := o.secureConfig(cmd)
			if err != nil {
				return err
			}
			defer release()
			if err := loadConfigFile(cfg, file); err != nil {
				return err
			}
			out, err := cfg.Dotenv()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.AddCommand(get, encryptValue, dump)
	return cmd
}

func (o *options) secureConfig(cmd *cobra.Command) (*crypto.SecureConfig, func(), error) {
	codec, err := o.codec()
	if err != nil {
		return nil, nil, err
	}
	env, release, err := o.envelope()
	if err != nil {
		return nil, nil, err
	}
	text, err := env.WithCodec(codec)
	if err != nil {
		release()
		return nil, nil, err
	}
	cfg, err := crypto.NewSecureConfig(text, o.auditLogger(cmd))
	if err != nil {
		release()
		return nil, nil, err
	}
	return cfg, release, nil
}

func loadConfigFile(cfg *crypto.SecureConfig, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return cfg.LoadYAMLFile(path)
	default:
		return cfg.LoadDotenvFile(path)
	}
}
