// root.go: Root command and shared key/codec options of the cryptex CLI.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	crypto "github.com/agilira/cryptex"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	transformation string
	encoding       string
	charset        string

	key         string
	keyFile     string
	passwordEnv string
	envFile     string

	kdf        string
	iterations int
	saltSize   int
	keyBits    int

	publicKeyFile  string
	privateKeyFile string

	audit bool
}

// NewRootCmd returns the cryptex command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "cryptex",
		Short: "Encrypt, decrypt and sign data with self-describing envelopes",
		Long: `cryptex produces envelopes laid out as IV, salt and payload, printed as base64 or hex.
Keys come from a base64 key, a password held in an environment variable, or PEM key files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.envFile == "" {
				return nil
			}
			if err := godotenv.Load(o.envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
			}
			return nil
		},
	}

	addCommonFlags(root.PersistentFlags(), o)

	root.AddCommand(
		newEncryptCmd(o),
		newDecryptCmd(o),
		newDigestCmd(o),
		newVerifyCmd(o),
		newKeygenCmd(),
		newConfigCmd(o),
	)
	return root
}

// Execute runs the command tree and exits with status 1 on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(fs *pflag.FlagSet, o *options) {
	fs.StringVarP(&o.transformation, "transformation", "t", crypto.DefaultTransformation, "cipher transformation ALGORITHM/MODE/PADDING")
	fs.StringVar(&o.encoding, "encoding", "base64", "text encoding of envelopes (base64, base64url, hex)")
	fs.StringVar(&o.charset, "charset", crypto.DefaultCharset, "charset of plaintext strings")

	fs.StringVar(&o.key, "key", "", "base64 encoded symmetric key")
	fs.StringVar(&o.keyFile, "key-file", "", "file holding a base64 encoded symmetric key")
	fs.StringVar(&o.passwordEnv, "password-env", "", "name of the environment variable holding the password")
	fs.StringVar(&o.envFile, "env-file", "", "dotenv file loaded before running the command")

	fs.StringVar(&o.kdf, "kdf", crypto.DefaultKDFAlgorithm, "password KDF (PBKDF2-HMAC-SHA1, PBKDF2-HMAC-SHA256, PBKDF2-HMAC-SHA512, Argon2id)")
	fs.IntVar(&o.iterations, "iterations", crypto.DefaultIterationCount, "password KDF iteration count")
	fs.IntVar(&o.saltSize, "salt-size", crypto.DefaultSaltSize, "password salt size in bytes")
	fs.IntVar(&o.keyBits, "key-bits", crypto.DefaultDerivedKeyBits, "derived key size in bits")

	fs.StringVar(&o.publicKeyFile, "public-key", "", "PEM public key file for asymmetric transformations")
	fs.StringVar(&o.privateKeyFile, "private-key", "", "PEM private key file for asymmetric transformations")

	fs.BoolVar(&o.audit, "audit", false, "write JSON audit events to stderr")
}

func (o *options) codec() (crypto.TextCodec, error) {
	enc, err := crypto.ParseTextEncoding(o.encoding)
	if err != nil {
		return crypto.TextCodec{}, err
	}
	c := crypto.TextCodec{Encoding: enc, Charset: o.charset}
	return c, c.Validate()
}

func (o *options) params() crypto.PasswordDerivationParams {
	p := crypto.DefaultPasswordDerivationParams()
	p.KDFAlgorithm = o.kdf
	p.IterationCount = o.iterations
	p.SaltSize = o.saltSize
	p.DerivedKeyBits = o.keyBits
	return p
}

func (o *options) auditLogger(cmd *cobra.Command) crypto.AuditLogger {
	if !o.audit {
		return nil
	}
	return crypto.NewJSONAuditLogger(cmd.ErrOrStderr())
}

// password returns the password named by --password-env. The caller must
// zeroize the result.
func (o *options) password() ([]byte, error) {
	v, ok := os.LookupEnv(o.passwordEnv)
	if !ok || v == "" {
		return nil, fmt.Errorf("environment variable %s is not set", o.passwordEnv)
	}
	return []byte(v), nil
}

// secret loads the symmetric key given by --key or --key-file for algorithm.
func (o *options) secret(algorithm string) (*crypto.SecretMaterial, error) {
	encoded := o.key
	if o.keyFile != "" {
		data, err := os.ReadFile(o.keyFile) // #nosec G304 -- path is a CLI argument
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		encoded = strings.TrimSpace(string(data))
		crypto.Zeroize(data)
	}
	return crypto.SecretFromBase64(encoded, algorithm)
}

func (o *options) hasSymmetricKey() bool { return o.key != "" || o.keyFile != "" }

// envelope builds the cipher envelope selected by the flags. release must be
// called when the envelope is no longer needed.
func (o *options) envelope() (env *crypto.CipherEnvelope, release func(), err error) {
	t, err := crypto.ParseTransformation(o.transformation)
	if err != nil {
		return nil, nil, err
	}
	suite, err := crypto.ResolveSuite(t)
	if err != nil {
		return nil, nil, err
	}

	b := crypto.NewCipherEnvelopeBuilder().Transformation(o.transformation)
	release = func() {}

	switch {
	case suite.IsAsymmetric():
		pub, priv, err := o.keyPair()
		if err != nil {
			return nil, nil, err
		}
		b.KeySource(crypto.AsymmetricKey(pub, priv))
	case o.hasSymmetricKey():
		secret, err := o.secret(suite.KeyAlgorithm())
		if err != nil {
			return nil, nil, err
		}
		b.KeySource(crypto.DirectKey(secret))
		release = secret.Destroy
	case o.passwordEnv != "":
		pw, err := o.password()
		if err != nil {
			return nil, nil, err
		}
		b.KeySource(crypto.PasswordKey(pw, o.params()))
		crypto.Zeroize(pw)
	default:
		return nil, nil, errors.New("one of --key, --key-file or --password-env is required")
	}

	env, err = b.Build()
	if err != nil {
		release()
		return nil, nil, err
	}
	return env, func() {
		env.Destroy()
		release()
	}, nil
}

func (o *options) keyPair() (pub, priv any, err error) {
	if o.publicKeyFile == "" && o.privateKeyFile == "" {
		return nil, nil, errors.New("asymmetric transformations need --public-key or --private-key")
	}
	if o.publicKeyFile != "" {
		data, err := os.ReadFile(o.publicKeyFile) // #nosec G304 -- path is a CLI argument
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read public key: %w", err)
		}
		if pub, err = crypto.ParsePublicKeyPEM(data); err != nil {
			return nil, nil, err
		}
	}
	if o.privateKeyFile != "" {
		data, err := os.ReadFile(o.privateKeyFile) // #nosec G304 -- path is a CLI argument
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read private key: %w", err)
		}
		priv, err = crypto.ParsePrivateKeyPEM(data)
		crypto.Zeroize(data)
		if err != nil {
			return nil, nil, err
		}
	}
	return pub, priv, nil
}

// readInput returns the first argument, or stdin with one trailing newline removed.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
