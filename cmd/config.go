package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/spf13/cobra"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"go.uber.org/dig"
)

const externalNodeNote = "\nPlease note:\nIf rpin is connected to an external IPFS node, the node's own keys are used instead!"

func GetConfigCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration and node keys",
	}
	root.AddCommand(GetConfigShowCommand(c), GetPublicKeyCommand(c), GetPrivateKeyCommand(c))
	return root
}

func GetConfigShowCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use: "show",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Invoke(func(c *config.Config) error {
				return printYaml(c)
			})
		},
	}
	return root
}

// withKey runs fn with the node private key from the container.
func withKey(c *dig.Container, fn func(priv crypto.PrivKey) error) error {
	return c.Invoke(func(privkey []byte) error {
		priv, err := crypto.UnmarshalPrivateKey(privkey)
		if err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}
		return fn(priv)
	})
}

func printResult(s string) {
	fmt.Println("\nResult:")
	fmt.Println(s)
	fmt.Println(externalNodeNote)
}

func GetPublicKeyCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use: "pubkey",
	}
	root.AddCommand(GetPublicKeyShowCommand(c), GetPublicIdentityShowCommand(c))
	return root
}

func GetPublicKeyShowCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "peerId",
		Short: "Print the peer id of the embedded node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKey(c, func(priv crypto.PrivKey) error {
				identity, err := peer.IDFromPublicKey(priv.GetPublic())
				if err != nil {
					return err
				}
				printResult(identity.String())
				return nil
			})
		},
	}
	return root
}

func GetPublicIdentityShowCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "show",
		Short: "Print the base64 public key of the embedded node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKey(c, func(priv crypto.PrivKey) error {
				pubBytes, err := crypto.MarshalPublicKey(priv.GetPublic())
				if err != nil {
					return err
				}
				printResult(base64.StdEncoding.EncodeToString(pubBytes))
				return nil
			})
		},
	}
	return root
}

func GetPrivateKeyCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use: "privkey",
	}
	root.AddCommand(GetPrivateKeyShowCommand(c))
	return root
}

func GetPrivateKeyShowCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "show",
		Short: "Print the base64 private key, usable as P2P_SECRETKEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKey(c, func(priv crypto.PrivKey) error {
				privBytes, err := crypto.MarshalPrivateKey(priv)
				if err != nil {
					return err
				}
				printResult(base64.StdEncoding.EncodeToString(privBytes))
				return nil
			})
		},
	}
	return root
}
