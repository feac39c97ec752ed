package httpx

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	glucotls "github.com/HatiCode/glucoguard/pkg/tls"
)

// NewClient builds the client used to call a remote classifier. With TLS
// enabled it verifies the remote side against the configured CA and
// presents the configured certificate.
func NewClient(tlsCfg glucotls.Config, timeout time.Duration) (*http.Client, error) {
	var clientTLS *tls.Config
	if tlsCfg.Enabled {
		var err error
		if clientTLS, err = glucotls.NewClientTLSConfig(tlsCfg); err != nil {
			return nil, fmt.Errorf("client TLS: %w", err)
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			TLSClientConfig:     clientTLS,
		},
	}, nil
}
