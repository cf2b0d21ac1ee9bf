package alertengine

// base58Alphabet is Bitcoin/Solana-style base58 (no 0, O, I, l).
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// isValidWalletAddress performs the syntactic check spec §4.5 step 11 requires
// before probing a counterparty: a Solana base58 public key is 32-44 characters.
func isValidWalletAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	for _, r := range addr {
		if !containsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
