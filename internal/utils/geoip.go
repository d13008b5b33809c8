package utils

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP resolves client addresses to approximate coordinates from a GeoLite2/GeoIP2 City database.
type GeoIP struct {
	db *geoip2.Reader
}

// OpenGeoIP opens the mmdb file at path. An empty path yields (nil, nil).
func OpenGeoIP(path string) (*GeoIP, error) {
	if path == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip %s: %w", path, err)
	}
	return &GeoIP{db: db}, nil
}

// Locate returns lon, lat for ip. ok is false for unparsable, private or unknown addresses.
func (g *GeoIP) Locate(ip string) (lon, lat float64, ok bool) {
	if g == nil || g.db == nil {
		return 0, 0, false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return 0, 0, false
	}
	rec, err := g.db.City(parsed)
	if err != nil {
		return 0, 0, false
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return 0, 0, false
	}
	return rec.Location.Longitude, rec.Location.Latitude, true
}

func (g *GeoIP) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
