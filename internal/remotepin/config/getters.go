package config

func (c *Config) GetIpfsAPI() *string {
	var res *string
	if c.Node.API != "" {
		res = &c.Node.API
	}
	// can return nil, in which case
	// run our own libp2p instance
	return res
}

// IsPinFor reports whether pin requests broadcast by peer are honoured.
func (c *Config) IsPinFor(peer string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, p := range c.Peers.PinFor {
		if p == peer {
			return true
		}
	}
	return false
}

// TrustedPeers returns the peers whose announcements are auto-pinned.
func (c *Config) TrustedPeers() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string{}, c.Peers.PinFor...)
}

func (c *Config) AdminTokens() []AccessTokens {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]AccessTokens{}, c.Admin.AccessTokens...)
}
