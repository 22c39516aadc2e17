package geoip

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// CountryResolver tags a client address with its ISO 3166 country code.
type CountryResolver interface {
	Country(addr netip.Addr) (string, bool)
}

// CountryDB answers CountryResolver from a MaxMind country database.
type CountryDB struct {
	reader *geoip2.Reader
}

// OpenCountryDB returns nil and no error for an empty path, which leaves the
// access log without a country field.
func OpenCountryDB(path string) (*CountryDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &CountryDB{reader: reader}, nil
}

// Country reports false for addresses that never leave the operator's
// network and for addresses the database does not know.
func (db *CountryDB) Country(addr netip.Addr) (string, bool) {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		return "", false
	}
	record, err := db.reader.Country(net.IP(addr.AsSlice()))
	if err != nil || record.Country.IsoCode == "" {
		return "", false
	}
	return record.Country.IsoCode, true
}

func (db *CountryDB) Close() error {
	if db == nil {
		return nil
	}
	return db.reader.Close()
}
