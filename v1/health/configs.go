package health

import (
	"net"
	"strconv"
)

// Config of the health endpoint.
type Config struct {
	Enabled bool   `yaml:"enabled" envconfig:"HEALTH_CHECK_ENABLED"`
	Host    string `yaml:"host" envconfig:"HEALTH_HOST"`
	Port    int    `yaml:"port" envconfig:"HEALTH_PORT"`
}

// DefaultPort is used when Port is zero.
const DefaultPort = 8080

// Address returns host:port of the server.
func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}
