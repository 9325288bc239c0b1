package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"github.com/tezoscommons/rpin/internal/remotepin/network"
	"github.com/tezoscommons/rpin/internal/remotepin/pinner"
	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
	"go.uber.org/dig"
	"gopkg.in/yaml.v2"
)

type pinFlags struct {
	origins      []string
	name         string
	meta         map[string]string
	mergeOrigins bool
	timeout      time.Duration
}

func (f *pinFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.origins, "origin", nil, "multiaddr the service may fetch from (repeatable)")
	cmd.Flags().StringVar(&f.name, "name", "", "pin name")
	cmd.Flags().StringToStringVar(&f.meta, "meta", nil, "pin metadata as key=value")
	cmd.Flags().BoolVar(&f.mergeOrigins, "merge-origins", false, "also send the node's own addresses")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "give up waiting after this long")
}

func (f *pinFlags) args(cidStr string) (pinner.PinArgs, error) {
	args := pinner.PinArgs{Name: f.name, Meta: f.meta}
	c, err := cid.Decode(cidStr)
	if err != nil {
		return args, fmt.Errorf("invalid cid %q: %w", cidStr, err)
	}
	args.Cid = c
	for _, o := range f.origins {
		a, err := multiaddr.NewMultiaddr(o)
		if err != nil {
			return args, fmt.Errorf("invalid origin %q: %w", o, err)
		}
		args.Origins = append(args.Origins, a)
	}
	return args, nil
}

// context is cancelled on interrupt or after --timeout
func (f *pinFlags) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if f.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (f *pinFlags) apply(c *dig.Container) error {
	return c.Invoke(func(conf *config.Config) {
		if f.mergeOrigins {
			conf.Pinner.MergeOrigins = true
		}
	})
}

func GetPinCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "pin",
		Short: "Manage remote pins",
	}
	root.AddCommand(GetPinAddCommand(c), GetPinReplaceCommand(c), GetPinStatusCommand(c))
	root.AddCommand(GetPinListCommand(c), GetPinRemoveCommand(c))
	return root
}

func GetPinAddCommand(c *dig.Container) *cobra.Command {
	f := &pinFlags{}
	var root = &cobra.Command{
		Use:   "add <cid>",
		Short: "Pin a cid held by the local node and wait for it to settle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pargs, err := f.args(args[0])
			if err != nil {
				return err
			}
			if err := f.apply(c); err != nil {
				return err
			}
			ctx, cancel := f.context()
			defer cancel()
			return c.Invoke(func(p *pinner.Pinner) error {
				st, err := p.AddPin(ctx, pargs)
				if err != nil {
					return err
				}
				return printYaml(st)
			})
		},
	}
	f.register(root)
	return root
}

func GetPinReplaceCommand(c *dig.Container) *cobra.Command {
	f := &pinFlags{}
	var root = &cobra.Command{
		Use:   "replace <requestid> <cid>",
		Short: "Replace an existing remote pin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pargs, err := f.args(args[1])
			if err != nil {
				return err
			}
			if err := f.apply(c); err != nil {
				return err
			}
			ctx, cancel := f.context()
			defer cancel()
			return c.Invoke(func(p *pinner.Pinner) error {
				st, err := p.ReplacePin(ctx, pinner.ReplaceArgs{PinArgs: pargs, RequestID: args[0]})
				if err != nil {
					return err
				}
				return printYaml(st)
			})
		},
	}
	f.register(root)
	return root
}

func GetPinStatusCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "status <requestid>",
		Short: "Show the status of a remote pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Invoke(func(s *pinning.Client) error {
				st, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYaml(st)
			})
		},
	}
	return root
}

func GetPinListCommand(c *dig.Container) *cobra.Command {
	var status []string
	var cids []string
	var name string
	var limit int
	var root = &cobra.Command{
		Use:   "ls",
		Short: "List remote pins",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pinning.ListOptions{Cids: cids, Name: name, Limit: limit}
			for _, s := range status {
				opts.Status = append(opts.Status, pinning.Status(strings.ToLower(s)))
			}
			return c.Invoke(func(s *pinning.Client) error {
				res, err := s.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printYaml(res)
			})
		},
	}
	root.Flags().StringSliceVar(&status, "status", nil, "only pins in these states")
	root.Flags().StringSliceVar(&cids, "cid", nil, "only pins of these cids")
	root.Flags().StringVar(&name, "name", "", "only pins with this name")
	root.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	return root
}

func GetPinRemoveCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "rm <requestid>",
		Short: "Remove a remote pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Invoke(func(s *pinning.Client) error {
				return s.Remove(cmd.Context(), args[0])
			})
		},
	}
	return root
}

func GetAddCommand(c *dig.Container) *cobra.Command {
	f := &pinFlags{}
	var root = &cobra.Command{
		Use:   "add <file>",
		Short: "Add a file to the local node and pin it remotely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			if err := f.apply(c); err != nil {
				return err
			}
			ctx, cancel := f.context()
			defer cancel()
			return c.Invoke(func(net network.NetworkInterface, p *pinner.Pinner) error {
				added, err := net.AddFile(ctx, file)
				if err != nil {
					return err
				}
				fmt.Println("added", added.String())
				pargs, err := f.args(added.String())
				if err != nil {
					return err
				}
				st, err := p.AddPin(ctx, pargs)
				if err != nil {
					return err
				}
				return printYaml(st)
			})
		},
	}
	f.register(root)
	return root
}

func GetCatCommand(c *dig.Container) *cobra.Command {
	var root = &cobra.Command{
		Use:   "cat <cid>",
		Short: "Print content through the local node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return fmt.Errorf("invalid cid %q: %w", args[0], err)
			}
			return c.Invoke(func(net network.NetworkInterface) error {
				r, err := net.GetFile(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rc, ok := r.(io.Closer); ok {
					defer rc.Close()
				}
				_, err = io.Copy(os.Stdout, r)
				return err
			})
		},
	}
	return root
}

func printYaml(v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
