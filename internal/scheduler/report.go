package scheduler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

const (
	dashboardCSVName = "wallet_dashboard_live.csv"
	reportMDName     = "wallet_report.md"
	reportJSONName   = "wallet_report.json"
)

// latestAlertByWallet keeps, per wallet, the most recent alert seen in the ring.
func latestAlertByWallet(alerts []domain.Alert) map[string]domain.Alert {
	latest := make(map[string]domain.Alert)
	for _, a := range alerts {
		if existing, ok := latest[a.Wallet]; !ok || a.CreatedAt.After(existing.CreatedAt) {
			latest[a.Wallet] = a
		}
	}
	return latest
}

func sortedByNetTotalDesc(wallets []domain.Wallet) []domain.Wallet {
	out := make([]domain.Wallet, len(wallets))
	copy(out, wallets)
	sort.Slice(out, func(i, j int) bool { return out[i].NetTotal > out[j].NetTotal })
	return out
}

// writeDashboardCSV refreshes the live dashboard CSV: one row per watched wallet,
// sorted by net_total descending, enriched with its most recent alert if any
// (spec §4.10, grounded on original_source/src/wallet_monitor.py's update_dashboard).
func writeDashboardCSV(dataDir string, wallets []domain.Wallet, alerts []domain.Alert) error {
	latest := latestAlertByWallet(alerts)
	ordered := sortedByNetTotalDesc(wallets)

	f, err := os.Create(filepath.Join(dataDir, dashboardCSVName))
	if err != nil {
		return fmt.Errorf("create dashboard csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"wallet", "net_total", "win_rate", "dex", "duration_hours",
		"last_alert_profit", "last_activity", "alert_active", "last_signal_type", "last_zscore", "last_detect_ms",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, wallet := range ordered {
		row := []string{
			wallet.Address,
			fmt.Sprintf("%.4f", wallet.NetTotal),
			fmt.Sprintf("%.2f", wallet.WinRate),
			wallet.DexLabel,
			fmt.Sprintf("%.2f", wallet.DurationHours),
			"", "", "false", "", "", "",
		}
		if a, ok := latest[wallet.Address]; ok {
			row[5] = fmt.Sprintf("%.4f", a.Profit)
			row[6] = a.CreatedAt.UTC().Format(time.RFC3339)
			row[7] = "true"
			row[8] = a.SignalType
			row[9] = fmt.Sprintf("%+.2f", a.ZScore)
			row[10] = fmt.Sprintf("%d", a.DetectionMS)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// writeMarkdownReport refreshes the human-readable markdown summary: wallet
// rankings, the 10 most recent alerts, and the most recently blocked candidates
// (spec §4.10, grounded on original_source/src/wallet_monitor.py's update_report —
// its "suspicious clusters" section has no grounded equivalent here since this
// repository does not track counterparty co-occurrence, so it is replaced with a
// recently-blocked summary instead).
func writeMarkdownReport(dataDir string, wallets []domain.Wallet, alerts []domain.Alert, blocked []domain.BlockedAlert) error {
	ordered := sortedByNetTotalDesc(wallets)
	now := time.Now().UTC()

	lines := []string{"# Solana Wallet Surveillance\n"}
	lines = append(lines, fmt.Sprintf("_Last updated: %s_\n", now.Format(time.RFC3339)))
	lines = append(lines, "## Summary\n")
	for _, wallet := range ordered {
		lines = append(lines, fmt.Sprintf(
			"- **%s…** (%s): net %+.2f SOL | win rate %.1f%% | duration %.1f h",
			truncateAddr(wallet.Address, 12), orUnknownDex(wallet.DexLabel), wallet.NetTotal, wallet.WinRate, wallet.DurationHours,
		))
	}

	lines = append(lines, "\n## 10 Most Recent Alerts\n")
	if len(alerts) == 0 {
		lines = append(lines, "No active alerts.\n")
	} else {
		recent := alerts
		if len(recent) > 10 {
			recent = recent[:10]
		}
		for _, a := range recent {
			line := fmt.Sprintf(
				"- %s**%s…**: +%.2f SOL at %s (venue %s | %s | Z %+.2f | confidence %s)",
				"⚡ ", truncateAddr(a.Wallet, 12), a.Profit, a.CreatedAt.UTC().Format(time.RFC3339),
				orUnknownDex(a.VenueLabel), a.SignalType, a.ZScore, a.Confidence,
			)
			lines = append(lines, line)
			if a.PrimarySignature != "" {
				lines = append(lines, fmt.Sprintf("  - https://solscan.io/tx/%s", a.PrimarySignature))
			}
		}
	}

	lines = append(lines, "\n## Recently Blocked\n")
	if len(blocked) == 0 {
		lines = append(lines, "Nothing blocked recently.")
	} else {
		recentBlocked := blocked
		if len(recentBlocked) > 10 {
			recentBlocked = recentBlocked[:10]
		}
		for _, b := range recentBlocked {
			lines = append(lines, fmt.Sprintf("- %s blocked (%s): %s", truncateAddr(b.Wallet, 12), b.Reason, b.Details))
		}
	}

	content := ""
	for i, l := range lines {
		if i > 0 {
			content += "\n"
		}
		content += l
	}
	return os.WriteFile(filepath.Join(dataDir, reportMDName), []byte(content), 0o644)
}

// detailedReport is the JSON report shape (spec §4.10's "detailed JSON report").
type detailedReport struct {
	Timestamp     string                   `json:"timestamp"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Configuration map[string]interface{}   `json:"configuration"`
	Statistics    map[string]interface{}   `json:"statistics"`
	Wallets       []map[string]interface{} `json:"wallets"`
	RecentAlerts  []domain.Alert           `json:"recent_alerts"`
}

func writeJSONReport(dataDir string, report detailedReport) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json report: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, reportJSONName), raw, 0o644)
}

func truncateAddr(addr string, n int) string {
	if len(addr) <= n {
		return addr
	}
	return addr[:n]
}

func orUnknownDex(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
