package alertengine

// programLabels maps well-known on-chain program ids to a human-readable venue
// label. Unmapped programs fall back to "Unknown" (spec §3 venue, §4.5 step 9).
var programLabels = map[string]string{
	"JUP4Fb2cqiRUcaTHdrPC8h2gK4G8cCxfXk8XQf2Zx1i": "Jupiter",
	"rvk5K9sH1t7h8GmHh5w7bqgTt3m1oJ2qkNoRayDiUM":  "Raydium",
	"9xQeWvG816bUx9EPfDdC1WJ4VqV6g5Gz5X5H5Q5tLCH":  "OpenBook",
	"orcaEKTdNdXBgaAwyQUpfCw9W7jfvAbzGt9xa1sG9W":   "Orca",
	"tensorFLkNft111111111111111111111111111111": "Tensor",
	"MEisE1HzehtrDpAAT8PnLHjpSSkRYakotTuJRPjTpo8": "MagicEden",
	"ComputeBudget111111111111111111111111111111": "System",
	"SysvarRent111111111111111111111111111111111": "System",
}

var nftVenues = map[string]struct{}{"Tensor": {}, "MagicEden": {}, "Blur": {}}
var ammVenues = map[string]struct{}{"Jupiter": {}, "Raydium": {}, "OpenBook": {}, "Orca": {}}

// labelFromPrograms returns the most frequent non-system, non-unknown venue label
// among the given program ids, or "Unknown" if none qualify.
func labelFromPrograms(programs []string) string {
	if len(programs) == 0 {
		return "Unknown"
	}

	counts := make(map[string]int)
	for _, p := range programs {
		label, ok := programLabels[p]
		if !ok {
			label = "Unknown"
		}
		if label == "System" || label == "Unknown" {
			continue
		}
		counts[label]++
	}

	best, bestCount := "Unknown", 0
	for label, count := range counts {
		if count > bestCount {
			best, bestCount = label, count
		}
	}
	return best
}

// classifySignal maps a venue label to the alert's signal type (spec §4.5 step 9).
func classifySignal(venueLabel string) string {
	if _, ok := nftVenues[venueLabel]; ok {
		return "Scalper NFT"
	}
	if _, ok := ammVenues[venueLabel]; ok {
		return "AMM / Aggregator"
	}
	return "Signal"
}
