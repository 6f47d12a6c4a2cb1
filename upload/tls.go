package upload

import (
	"crypto/x509"
	"fmt"
	"os"
)

// LoadRootBundle reads a PEM certificate bundle. An empty path selects the
// system roots.
func LoadRootBundle(path string) (*x509.CertPool, error) {
	if path == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load system roots: %w", err)
		}
		return pool, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read root bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("root bundle %s: no PEM certificates", path)
	}
	return pool, nil
}
