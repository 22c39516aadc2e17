package geoip

import (
	"net/netip"
	"path/filepath"
	"testing"
)

func TestOpenCountryDBWithoutPath(t *testing.T) {
	db, err := OpenCountryDB("  ")
	if err != nil || db != nil {
		t.Fatalf("OpenCountryDB(empty) = %v, %v", db, err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close on nil db: %v", err)
	}
}

func TestOpenCountryDBMissingFile(t *testing.T) {
	if _, err := OpenCountryDB(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestCountrySkipsLocalAddresses(t *testing.T) {
	db := &CountryDB{}
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.9", "::1", "fe80::1", "::ffff:10.0.0.1"} {
		if code, ok := db.Country(netip.MustParseAddr(ip)); ok {
			t.Fatalf("Country(%s) = %q, want no answer", ip, code)
		}
	}
	if _, ok := db.Country(netip.Addr{}); ok {
		t.Fatal("zero address should not resolve")
	}
}
