package crypto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DerivationPath is the BIP-32 path persona keys are derived along.
const DerivationPath = "m/44'/60'/0'/0/0"

// newMasterKey computes the BIP-32 master node of seed. The network only
// affects serialization, which persona keys never use.
func newMasterKey(seed []byte) (*hdkeychain.ExtendedKey, error) {
	return hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
}

// derivePath walks path ("m/44'/60'/...") from master. Intermediate nodes are
// zeroed once their child exists; the caller owns master and the result.
func derivePath(master *hdkeychain.ExtendedKey, path string) (*hdkeychain.ExtendedKey, error) {
	parts := strings.Split(path, "/")
	if parts[0] != "m" {
		return nil, fmt.Errorf("derivation path %q: must start with m", path)
	}
	node := master
	for _, p := range parts[1:] {
		var offset uint32
		if s, ok := strings.CutSuffix(p, "'"); ok {
			p = s
			offset = hdkeychain.HardenedKeyStart
		}
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("derivation path %q: %w", path, err)
		}
		next, err := node.Derive(uint32(n) + offset)
		if node != master {
			node.Zero()
		}
		if err != nil {
			return nil, fmt.Errorf("derivation path %q: %w", path, err)
		}
		node = next
	}
	return node, nil
}

// nodePrivateKey returns the secp256k1 private key held by node.
func nodePrivateKey(node *hdkeychain.ExtendedKey) (*secp256k1.PrivateKey, error) {
	return node.ECPrivKey()
}
