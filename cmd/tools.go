package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
)

func GetToolsCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use: "tools",
	}
	root.AddCommand(GetGenKeysCommand(c))
	return root
}

func GetGenKeysCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "genkeys",
		Short: "Generate a node identity for P2P_SECRETKEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := crypto.GenerateKeyPair(crypto.Ed25519, 256)
			if err != nil {
				return err
			}
			bpriv, err := crypto.MarshalPrivateKey(priv)
			if err != nil {
				return err
			}
			bpub, err := crypto.MarshalPublicKey(pub)
			if err != nil {
				return err
			}
			identity, err := peer.IDFromPublicKey(pub)
			if err != nil {
				return err
			}

			fmt.Println("\nIdentity:")
			fmt.Println(identity)

			fmt.Println("\nPublicKey:")
			fmt.Println(base64.StdEncoding.EncodeToString(bpub))

			fmt.Println("\nPrivateKey:")
			fmt.Println(base64.StdEncoding.EncodeToString(bpriv))
			return nil
		},
	}
	return root
}
