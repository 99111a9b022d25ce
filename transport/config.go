package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/2thetop/scalar/errors"
)

// maxConfigSize bounds the /gvfs/config response body.
const maxConfigSize = 1 << 20

// CacheServer is one cache server advertised by the origin.
type CacheServer struct {
	URL           string `json:"Url"`
	Name          string `json:"Name"`
	GlobalDefault bool   `json:"GlobalDefault"`
}

// VersionRange is an inclusive range of allowed client versions.
type VersionRange struct {
	Min *Version `json:"Min"`
	Max *Version `json:"Max"`
}

// Version is a four-part client version.
type Version struct {
	Major    int `json:"Major"`
	Minor    int `json:"Minor"`
	Build    int `json:"Build"`
	Revision int `json:"Revision"`
}

// ServerConfig is the origin's /gvfs/config answer.
type ServerConfig struct {
	AllowedClientVersions []VersionRange `json:"AllowedGvfsClientVersions"`
	CacheServers          []CacheServer  `json:"CacheServers"`
}

// DefaultCacheServer returns the cache server marked as the global default.
func (s *ServerConfig) DefaultCacheServer() (CacheServer, bool) {
	for _, cs := range s.CacheServers {
		if cs.GlobalDefault {
			return cs, true
		}
	}
	return CacheServer{}, false
}

// QueryConfig fetches the server configuration from the origin. It is
// always sent to the origin, never the cache server.
func (c *Client) QueryConfig(ctx context.Context) (*ServerConfig, error) {
	resp, err := c.do(ctx, http.MethodGet, c.originURL+configPath, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigSize))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, "failed to read server config")
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to parse server config")
	}
	return &cfg, nil
}
