package middleware

import (
	"net/http"
	"strconv"

	"health-geo/internal/logger"
	"health-geo/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

const edgeOriginKey = "edge_origin"

// edgeHeaders are latitude/longitude header pairs written by CDNs in front of the origin,
// in priority order.
var edgeHeaders = [][2]string{
	{"X-EO-Geo-Latitude", "X-EO-Geo-Longitude"},
	{"CF-IPLatitude", "CF-IPLongitude"},
	{"X-Client-Latitude", "X-Client-Longitude"},
}

// ParseEdgeGeo reads the first complete, valid coordinate pair from the CDN headers.
func ParseEdgeGeo(h http.Header) (orb.Point, bool) {
	for _, pair := range edgeHeaders {
		la, lo := h.Get(pair[0]), h.Get(pair[1])
		if la == "" || lo == "" {
			continue
		}
		lat, err1 := strconv.ParseFloat(la, 64)
		lon, err2 := strconv.ParseFloat(lo, 64)
		if err1 != nil || err2 != nil || !models.ValidCoordinates(lon, lat) {
			continue
		}
		return orb.Point{lon, lat}, true
	}
	return orb.Point{}, false
}

// ClientGeo stores the CDN-provided client position, if any, for handlers that need an
// origin the caller did not send. A malformed header never blocks the request.
func ClientGeo() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := ParseEdgeGeo(c.Request.Header); ok {
			logger.L().Debug("edge_geo", "lat", p.Lat(), "lon", p.Lon())
			c.Set(edgeOriginKey, p)
		}
		c.Next()
	}
}

// EdgeOrigin returns what ClientGeo stored.
func EdgeOrigin(c *gin.Context) (orb.Point, bool) {
	v, ok := c.Get(edgeOriginKey)
	if !ok {
		return orb.Point{}, false
	}
	p, ok := v.(orb.Point)
	return p, ok
}
