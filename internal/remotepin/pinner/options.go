package pinner

import (
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
)

// OptionsFromConfig builds Options from the Pinner section of the config.
func OptionsFromConfig(c *config.Config) (Options, error) {
	pc := c.Pinner
	opts := Options{
		MergeOrigins:      pc.MergeOrigins,
		CheckLatestStatus: pc.CheckLatestStatus,
		Retry: RetryPolicy{
			Attempts:   pc.Retry.Attempts,
			MinBackoff: pc.Retry.MinBackoff,
			MaxBackoff: pc.Retry.MaxBackoff,
			Factor:     pc.Retry.Factor,
			Jitter:     pc.Retry.Jitter,
		},
	}

	origins := []OriginFilter{}
	if len(pc.OriginFilter.ExcludeProtocols) > 0 {
		f, err := ExcludeProtocols(pc.OriginFilter.ExcludeProtocols...)
		if err != nil {
			return opts, err
		}
		origins = append(origins, f)
	}
	if len(pc.OriginFilter.DenyCIDRs) > 0 {
		f, err := DenyCIDRs(pc.OriginFilter.DenyCIDRs...)
		if err != nil {
			return opts, err
		}
		origins = append(origins, f)
	}
	if pc.OriginFilter.PublicOnly {
		origins = append(origins, PublicOnly())
	}
	if len(origins) > 0 {
		opts.OriginFilter = ChainOrigins(origins...)
	}

	if len(pc.DelegateFilter.ExcludeProtocols) > 0 {
		f, err := ExcludeDelegateProtocols(pc.DelegateFilter.ExcludeProtocols...)
		if err != nil {
			return opts, err
		}
		opts.DelegateFilter = f
	}
	return opts, nil
}

// NewFromConfig is the dig constructor for the daemon and CLI.
func NewFromConfig(c *config.Config, node Node, svc Service, l *logrus.Entry) (*Pinner, error) {
	opts, err := OptionsFromConfig(c)
	if err != nil {
		return nil, err
	}
	return New(node, svc, opts, l), nil
}
