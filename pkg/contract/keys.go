package contract

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/tonkeeper/tongo/wallet"
	"golang.org/x/text/unicode/norm"
)

const mnemonicWords = 24

// DeriveWalletKey reconstructs the wallet private key from a 24 word backup
// phrase. Phrases that fail the seed checksum are rejected.
func DeriveWalletKey(mnemonic string) (ed25519.PrivateKey, error) {
	words := strings.Fields(strings.ToLower(norm.NFKD.String(mnemonic)))
	if len(words) != mnemonicWords {
		return nil, fmt.Errorf("mnemonic must have %d words, got %d", mnemonicWords, len(words))
	}
	key, err := wallet.SeedToPrivateKey(strings.Join(words, " "))
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet key: %w", err)
	}
	return key, nil
}
