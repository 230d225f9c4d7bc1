package config

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/util"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const BASE_DIR = ".nostr-onion"

// InitConfig loads the configuration file into viper, creating a default one
// when none exists and no explicit path was requested.
func InitConfig() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	handleConfigFile()
}

func setDefaults() {
	d := Defaults()

	viper.SetDefault("route.base_interval", d.Route.BaseInterval)
	viper.SetDefault("route.jitter", d.Route.Jitter)
	viper.SetDefault("route.created_at_jitter", d.Route.CreatedAtJitter)

	viper.SetDefault("relays.directory", d.Relays.Directory)
	viper.SetDefault("relays.fallback", d.Relays.Fallback)
	viper.SetDefault("relays.dial_timeout", d.Relays.DialTimeout)
	viper.SetDefault("relays.publish_timeout", d.Relays.PublishTimeout)
	viper.SetDefault("relays.query_timeout", d.Relays.QueryTimeout)

	viper.SetDefault("mint.url", d.Mint.URL)
	viper.SetDefault("mint.unit", d.Mint.Unit)
	viper.SetDefault("mint.poll_interval", d.Mint.PollInterval)
	viper.SetDefault("mint.request_timeout", d.Mint.RequestTimeout)
	viper.SetDefault("mint.payment_timeout", d.Mint.PaymentTimeout)

	viper.SetDefault("ntp.enabled", d.NTP.Enabled)
	viper.SetDefault("ntp.servers", d.NTP.Servers)
	viper.SetDefault("ntp.timeout", d.NTP.Timeout)

	viper.SetDefault("directory.path", d.Directory.Path)

	viper.SetDefault("tracer.history", d.Tracer.History)
	viper.SetDefault("tracer.viewer_url", d.Tracer.ViewerURL)
}

// CurrentConfig builds a typed Config from the current viper settings.
// Keys must match the ones written by setDefaults.
func CurrentConfig() Config {
	return Config{
		Route: RouteDefaults{
			BaseInterval:    viper.GetDuration("route.base_interval"),
			Jitter:          viper.GetDuration("route.jitter"),
			CreatedAtJitter: viper.GetDuration("route.created_at_jitter"),
		},
		Relays: RelayDefaults{
			Directory:      viper.GetStringSlice("relays.directory"),
			Fallback:       viper.GetStringSlice("relays.fallback"),
			DialTimeout:    viper.GetDuration("relays.dial_timeout"),
			PublishTimeout: viper.GetDuration("relays.publish_timeout"),
			QueryTimeout:   viper.GetDuration("relays.query_timeout"),
		},
		Mint: MintDefaults{
			URL:            viper.GetString("mint.url"),
			Unit:           viper.GetString("mint.unit"),
			PollInterval:   viper.GetDuration("mint.poll_interval"),
			RequestTimeout: viper.GetDuration("mint.request_timeout"),
			PaymentTimeout: viper.GetDuration("mint.payment_timeout"),
		},
		NTP: NTPDefaults{
			Enabled: viper.GetBool("ntp.enabled"),
			Servers: viper.GetStringSlice("ntp.servers"),
			Timeout: viper.GetDuration("ntp.timeout"),
		},
		Directory: DirectoryDefaults{
			Path: viper.GetString("directory.path"),
		},
		Tracer: TracerDefaults{
			History:   viper.GetInt("tracer.history"),
			ViewerURL: viper.GetString("tracer.viewer_url"),
		},
	}
}

func createDefaultConfig(defaultConfigDir string) {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := CreateSecureDirectory(defaultConfigDir); err != nil {
		log.WithError(err).Warn("Could not create config directory, continuing with defaults")
		return
	}
	if err := viper.SafeWriteConfigAs(defaultConfigFile); err != nil {
		log.WithError(err).Warn("Could not write default config file, continuing with defaults")
		return
	}
	log.Debugf("Created default configuration at: %s", defaultConfigFile)
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			createDefaultConfig(BuildDirPath())
			return
		}
		if os.IsNotExist(err) && CfgFile != "" {
			log.Fatalf("Config file %s is not found: %s", CfgFile, err)
		}
		log.Fatalf("Error reading config file: %s", err)
	}
	log.Debugf("Using config file: %s", viper.ConfigFileUsed())
}

// BuildDirPath returns the per-user directory holding config, keys and the hop directory.
func BuildDirPath() string {
	return filepath.Join(util.UserHome(), BASE_DIR)
}
