package decision

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/features"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// Writer persists one run's artifact set under a single directory.
// A trade date's artifacts stand until an explicit recomputation
// overwrites them; nothing here merges.
type Writer struct {
	log    *logger.Logger
	outDir string
}

// NewWriter binds the writer to its output directory. The directory
// is created on the first write.
func NewWriter(log *logger.Logger, outDir string) *Writer {
	return &Writer{log: log.WithComponent("decision.writer"), outDir: outDir}
}

// OutDir returns the bound output directory.
func (w *Writer) OutDir() string { return w.outDir }

// WriteAll writes the six artifacts and returns artifact name to
// path. Any write failure aborts: a partial artifact set must never
// look complete.
func (w *Writer) WriteAll(card *contracts.DecisionCard, rep *contracts.QualityReport, watchlist []contracts.WatchlistEntry, table *contracts.FeatureTable, manifest *contracts.Manifest) (map[string]string, error) {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", w.outDir, err)
	}

	td := card.TradeDate
	paths := make(map[string]string, 6)

	p, err := w.writeJSON(fmt.Sprintf("decision_card_%s.json", td), card)
	if err != nil {
		return nil, err
	}
	paths["decision_card"] = p
	w.log.WithFields(map[string]interface{}{"path": p, "action": string(card.Action)}).Info("Written decision card")

	p, err = w.writeWatchlistCSV(td, watchlist)
	if err != nil {
		return nil, err
	}
	paths["watchlist_50"] = p
	w.log.WithFields(map[string]interface{}{"path": p, "entries": len(watchlist)}).Info("Written watchlist")

	p, err = w.writeJSON(fmt.Sprintf("quality_report_%s.json", td), rep)
	if err != nil {
		return nil, err
	}
	paths["quality_report"] = p
	w.log.WithFields(map[string]interface{}{"path": p, "all_passed": rep.AllPassed}).Info("Written quality report")

	p, err = w.writeJSON(fmt.Sprintf("manifest_%s.json", manifest.RunID), manifest)
	if err != nil {
		return nil, err
	}
	paths["manifest"] = p

	p, err = w.writeReport(card, rep, watchlist)
	if err != nil {
		return nil, err
	}
	paths["report_md"] = p

	p, err = w.writeFeaturesCSV(td, table)
	if err != nil {
		return nil, err
	}
	paths["features"] = p

	return paths, nil
}

// WriteFeatures writes only the features CSV. Inspection runs use it
// to dump a table without producing the full artifact set.
func (w *Writer) WriteFeatures(tradeDate string, table *contracts.FeatureTable) (string, error) {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", w.outDir, err)
	}
	return w.writeFeaturesCSV(tradeDate, table)
}

func (w *Writer) writeJSON(name string, v interface{}) (string, error) {
	path := filepath.Join(w.outDir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

func (w *Writer) writeWatchlistCSV(td string, entries []contracts.WatchlistEntry) (string, error) {
	path := filepath.Join(w.outDir, fmt.Sprintf("watchlist_50_%s.csv", td))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	_ = cw.Write([]string{"code", "name", "score", "reason_short", "is_new", "turnover_penalty"})
	for _, e := range entries {
		isNew := "0"
		if e.IsNew {
			isNew = "1"
		}
		_ = cw.Write([]string{
			e.Code,
			e.Name,
			formatFloat(round6(e.Score)),
			e.ReasonShort,
			isNew,
			formatFloat(round6(e.TurnoverPenalty)),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// writeFeaturesCSV exports the full table in the canonical column
// order. Missing values stay empty, the regime label substitutes at
// its column, and quality flags serialize as a JSON array string.
func (w *Writer) writeFeaturesCSV(td string, table *contracts.FeatureTable) (string, error) {
	path := filepath.Join(w.outDir, fmt.Sprintf("features_%s.csv", td))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	header := append([]string{"as_of", "code"}, features.ColumnOrder...)
	header = append(header, "quality_flags")

	cw := csv.NewWriter(f)
	_ = cw.Write(header)
	for _, row := range table.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.Date.Format("2006-01-02"), row.Code)
		for _, col := range features.ColumnOrder {
			if col == features.RegimeColumn {
				rec = append(rec, row.Regime)
				continue
			}
			if v, ok := row.Value(col); ok {
				rec = append(rec, formatFloat(v))
			} else {
				rec = append(rec, "")
			}
		}
		rec = append(rec, flagsJSON(row.Flags))
		_ = cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	w.log.WithFields(map[string]interface{}{"path": path, "rows": len(table.Rows)}).Info("Written feature table")
	return path, nil
}

func (w *Writer) writeReport(card *contracts.DecisionCard, rep *contracts.QualityReport, watchlist []contracts.WatchlistEntry) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# kabuto Daily Report - %s\n\n", card.TradeDate)
	fmt.Fprintf(&sb, "**run_id**: `%s`\n", card.RunID)
	fmt.Fprintf(&sb, "**action**: **%s**\n\n", card.Action)

	if len(card.NoTradeReasons) > 0 {
		sb.WriteString("## NO_TRADE Reasons\n\n")
		for _, r := range card.NoTradeReasons {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Key Metrics\n\n")
	sb.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&sb, "| WF IC | %.4f |\n", card.KeyMetrics.WFIC)
	fmt.Fprintf(&sb, "| Confidence | %.4f |\n", card.KeyMetrics.Confidence)
	fmt.Fprintf(&sb, "| Eligible stocks | %d |\n", card.KeyMetrics.NEligible)
	fmt.Fprintf(&sb, "| Missing rate | %.1f%% |\n\n", card.KeyMetrics.MissingRate*100)

	sb.WriteString("## Quality Gates\n\n")
	sb.WriteString("| Gate | Result | Metric |\n|------|--------|--------|\n")
	for _, name := range contracts.GateOrder {
		g, ok := rep.Gate(name)
		status := "✗ FAIL"
		if ok && g.Passed {
			status = "✓ PASS"
		}
		fmt.Fprintf(&sb, "| %s | %s | %.4f |\n", name, status, g.Metric)
	}

	sb.WriteString("\n## Watchlist Top 10\n\n")
	if len(watchlist) == 0 {
		sb.WriteString("_(no watchlist entries)_\n")
	} else {
		sb.WriteString("| Rank | Code | Name | Score | New? | Reason |\n")
		sb.WriteString("|------|------|------|-------|------|--------|\n")
		for i, e := range watchlist {
			if i == 10 {
				break
			}
			marker := ""
			if e.IsNew {
				marker = "★"
			}
			fmt.Fprintf(&sb, "| %d | %s | %s | %.4f | %s | %s |\n", i+1, e.Code, e.Name, e.Score, marker, e.ReasonShort)
		}
	}

	path := filepath.Join(w.outDir, fmt.Sprintf("report_%s.md", card.TradeDate))
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flagsJSON(flags []string) string {
	if len(flags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return "[]"
	}
	return string(data)
}
