package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigFile overrides the search path when set (see the --config flag).
var ConfigFile string

type Config struct {
	Log               Log
	PinService        PinService
	Pinner            Pinner
	Node              Node
	Admin             Admin
	DB                DB
	Peers             Peers
	AdminEnabled      bool
	PinManagerEnabled bool
	lock              sync.Mutex
	updates           []chan *Config
}

// GetUpdates returns a channel receiving the current config right away
// and again each time the config file changes.
func (c *Config) GetUpdates() chan *Config {
	ch := make(chan *Config, 1)
	c.lock.Lock()
	c.updates = append(c.updates, ch)
	c.lock.Unlock()
	go func() {
		ch <- c
	}()
	return ch
}

// reload takes over the sections that may change at runtime, Peers and
// Admin.AccessTokens, and notifies subscribers. Everything else is read once
// at start-up and stays as loaded.
func (c *Config) reload(n *Config) {
	c.lock.Lock()
	c.Peers = n.Peers
	c.Admin.AccessTokens = n.Admin.AccessTokens
	c.lock.Unlock()
	c.notify()
}

func (c *Config) notify() {
	c.lock.Lock()
	subs := append([]chan *Config{}, c.updates...)
	c.lock.Unlock()
	for _, ch := range subs {
		go func(ch chan *Config) {
			ch <- c
		}(ch)
	}
}

type Log struct {
	File          string `yaml:"File"`
	Format        string `yaml:"Format"`
	Level         string `yaml:"Level"`
	Elasticsearch string `yaml:"Elasticsearch"`
}

type PinService struct {
	Endpoint    string        `yaml:"Endpoint"`
	AccessToken string        `yaml:"AccessToken"`
	Timeout     time.Duration `yaml:"Timeout"`
}

type Pinner struct {
	MergeOrigins      bool           `yaml:"MergeOrigins"`
	CheckLatestStatus bool           `yaml:"CheckLatestStatus"`
	Retry             Retry          `yaml:"Retry"`
	OriginFilter      OriginFilter   `yaml:"OriginFilter"`
	DelegateFilter    DelegateFilter `yaml:"DelegateFilter"`
}

type Retry struct {
	Attempts   int           `yaml:"Attempts"`
	MinBackoff time.Duration `yaml:"MinBackoff"`
	MaxBackoff time.Duration `yaml:"MaxBackoff"`
	Factor     float64       `yaml:"Factor"`
	Jitter     bool          `yaml:"Jitter"`
}

type OriginFilter struct {
	ExcludeProtocols []string `yaml:"ExcludeProtocols"`
	PublicOnly       bool     `yaml:"PublicOnly"`
	DenyCIDRs        []string `yaml:"DenyCIDRs"`
}

type DelegateFilter struct {
	ExcludeProtocols []string `yaml:"ExcludeProtocols"`
}

type Node struct {
	// API of an external IPFS daemon, empty to run the embedded light client.
	API       string   `yaml:"API"`
	Listen    []string `yaml:"Listen"`
	Datastore string   `yaml:"Datastore"`
}

type Admin struct {
	Host         string         `yaml:"Host"`
	Port         int            `yaml:"Port"`
	AccessTokens []AccessTokens `yaml:"AccessTokens"`
	CORS         CORS           `yaml:"CORS"`
}

type CORS struct {
	AllowedDomains []string `yaml:"AllowedDomains"`
}

type AccessTokens struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

type DB struct {
	Storm string `yaml:"Storm"`
}

// Peers
type Peers struct {
	PinFor []string `yaml:"PinFor"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Log.Format", "text")
	v.SetDefault("Log.Level", "info")
	v.SetDefault("PinService.Timeout", 30*time.Second)
	v.SetDefault("Pinner.Retry.Attempts", 10)
	v.SetDefault("Pinner.Retry.MinBackoff", time.Second)
	v.SetDefault("Pinner.Retry.Factor", 2.0)
	v.SetDefault("Node.Listen", []string{"/ip4/0.0.0.0/tcp/4005", "/ip4/0.0.0.0/udp/4005/quic"})
	v.SetDefault("Node.Datastore", "/tmp/rpin-badger")
	v.SetDefault("Admin.Host", "127.0.0.1")
	v.SetDefault("Admin.Port", 5005)
	v.SetDefault("DB.Storm", "rpin.db")
}

// Load reads the config from an explicit file without watching it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)
	if ConfigFile != "" {
		v.SetConfigFile(ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rpin/")
		v.AddConfigPath("$HOME/.rpin")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	err := v.ReadInConfig() // Find and read the config file
	if err != nil { // Handle errors reading the config file
		panic(fmt.Errorf("Fatal error config file: %s \n", err))
	}
	c := &Config{}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)
		n := &Config{}
		if err := v.Unmarshal(n); err != nil {
			fmt.Printf("unable to decode into struct, %v\n", err)
			return
		}
		c.reload(n)
	})
	err = v.Unmarshal(c)
	if err != nil {
		panic(fmt.Errorf("unable to decode into struct, %v", err))
	}
	return c
}
