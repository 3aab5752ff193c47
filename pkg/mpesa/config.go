package mpesa

import (
	"time"

	"github.com/echohealth/echo_backend/config"
)

const (
	SandboxURL    = "https://sandbox.safaricom.co.ke"
	ProductionURL = "https://api.safaricom.co.ke"

	defaultCommandID = "BusinessPayment"
	defaultRegion    = "KE"
)

type Config struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	InitiatorName      string
	SecurityCredential string
	ShortCode          string
	CommandID          string
	ResultURL          string
	QueueTimeoutURL    string
	Timeout            time.Duration
	Region             string
}

// FromCentralConfig converts config.MPesaConfig, picking the sandbox or
// production host unless base_url overrides it.
func FromCentralConfig(c config.MPesaConfig) Config {
	base := c.BaseURL
	if base == "" {
		base = ProductionURL
		if c.Sandbox {
			base = SandboxURL
		}
	}
	cfg := Config{
		BaseURL:            base,
		ConsumerKey:        c.ConsumerKey,
		ConsumerSecret:     c.ConsumerSecret,
		InitiatorName:      c.InitiatorName,
		SecurityCredential: c.SecurityCredential,
		ShortCode:          c.ShortCode,
		CommandID:          c.CommandID,
		ResultURL:          c.ResultURL,
		QueueTimeoutURL:    c.QueueTimeoutURL,
		Timeout:            time.Duration(c.TimeoutSeconds) * time.Second,
		Region:             c.DefaultRegion,
	}
	if cfg.CommandID == "" {
		cfg.CommandID = defaultCommandID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	return cfg
}
