package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/cmd"
	"github.com/tezoscommons/rpin/internal/remotepin/app"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"github.com/tezoscommons/rpin/internal/remotepin/crypto"
	"github.com/tezoscommons/rpin/internal/remotepin/db"
	"github.com/tezoscommons/rpin/internal/remotepin/network"
	"github.com/tezoscommons/rpin/internal/remotepin/pinner"
	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
	"go.uber.org/dig"
	"gopkg.in/sohlich/elogrus.v7"
)

func main() {
	c := dig.New()
	c.Provide(config.NewConfig)
	c.Provide(GetLog)
	c.Provide(db.NewStormDB)
	c.Provide(crypto.GetPrivateKey)
	c.Provide(network.NewIPFS)
	c.Provide(network.NewLightclient)
	c.Provide(network.GetNetwork)
	c.Provide(func(n network.NetworkInterface) pinner.Node { return n })
	c.Provide(pinning.NewClient)
	c.Provide(func(s *pinning.Client) pinner.Service { return s })
	c.Provide(pinner.NewFromConfig)
	c.Provide(app.NewPinManager)
	c.Provide(app.NewAdminAPI)

	rootCmd := cmd.GetRootCommand(c)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func GetLog(c *config.Config) *logrus.Entry {
	l := logrus.New()
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if c.Log.Elasticsearch != "" {
		client, err := elastic.NewClient(elastic.SetURL(c.Log.Elasticsearch), elastic.SetSniff(false))
		if err != nil {
			log.Fatal(err)
		}
		host, _ := os.Hostname()
		hook, err := elogrus.NewAsyncElasticHook(client, host, level, "rpin")
		if err != nil {
			log.Fatal(err)
		}
		l.AddHook(hook)
	}

	if c.Log.File != "" {
		logFile, e := os.OpenFile(c.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if e != nil {
			fmt.Println(e)
		} else {
			l.SetOutput(io.MultiWriter(os.Stdout, logFile))
		}
	}
	if c.Log.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{})
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l.WithField("starttime", time.Now().Unix())
}
