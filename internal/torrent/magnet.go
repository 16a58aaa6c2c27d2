package torrent

import (
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// NormalizeMagnet parses a magnet URI and returns its canonical form and hex info hash.
func NormalizeMagnet(uri string) (magnet, infoHash string, err error) {
	m, err := metainfo.ParseMagnetUri(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid magnet: %w", err)
	}
	return m.String(), m.InfoHash.HexString(), nil
}

// MagnetFromHash builds a magnet URI from a hex info hash.
func MagnetFromHash(hash, displayName string) (magnet, infoHash string, err error) {
	var h metainfo.Hash
	if err := h.FromHexString(strings.TrimSpace(hash)); err != nil {
		return "", "", fmt.Errorf("invalid info hash %q: %w", hash, err)
	}
	m := metainfo.Magnet{InfoHash: h, DisplayName: displayName}
	return m.String(), h.HexString(), nil
}
