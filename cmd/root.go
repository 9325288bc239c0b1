package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tezoscommons/rpin/internal/remotepin/app"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"github.com/tezoscommons/rpin/internal/remotepin/network"
	"go.uber.org/dig"
)

func GetRootCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:          "rpin",
		Short:        "Pin content of the local node on a remote pinning service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&config.ConfigFile, "config", "", "config file (default: search /etc/rpin, $HOME/.rpin, ., ./config)")

	root.AddCommand(GetConfigCommand(c), GetRunCommand(c))
	root.AddCommand(GetPinCommand(c), GetAddCommand(c), GetCatCommand(c))
	root.AddCommand(GetToolsCommand(c))
	return root
}

func GetRunCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "run",
		Short: "Run the node, the admin API and the auto-pin manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			var node network.NetworkInterface
			err := c.Invoke(func(net network.NetworkInterface, a *app.Admin, pm *app.PinManager) {
				node = net
				fmt.Println("Peer ID:", net.ID())
				if a != nil {
					go a.Run()
				}
				if pm != nil {
					go pm.Run(ctx)
				}
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return network.Close(node)
		},
	}
	return root
}
