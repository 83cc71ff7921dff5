package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/strategyconfig"
)

// buildManifest binds one run to the exact code, data and
// configuration that produced it.
func buildManifest(runID, tradeDate string, strategy *strategyconfig.Config, in *Inputs) (*contracts.Manifest, error) {
	cfgHash, err := strategy.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash strategy config: %w", err)
	}
	return &contracts.Manifest{
		RunID:        runID,
		TradeDate:    tradeDate,
		CodeHash:     codeVersion(),
		InputsDigest: inputsDigest(in.Bars, in.Events),
		ConfigHash:   cfgHash,
		GeneratedAt:  time.Now().UTC(),
		Params:       strategy,
	}, nil
}

// codeVersion resolves the binary's VCS revision from build info.
func codeVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var rev, dirty string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev + dirty
}

// inputsDigest hashes every bar and event in a fixed order, so the
// digest is independent of map iteration order.
func inputsDigest(bars map[string][]*contracts.Bar, events []contracts.Event) string {
	h := sha256.New()

	codes := make([]string, 0, len(bars))
	for code := range bars {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		for _, b := range bars[code] {
			fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%t\n",
				code, b.Date.Format("2006-01-02"),
				digestFloat(b.Open), digestFloat(b.High), digestFloat(b.Low), digestFloat(b.Close),
				digestFloat(b.Volume), digestFloat(b.AdjClose), b.Suspended)
		}
	}

	evs := append([]contracts.Event(nil), events...)
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].Date.Equal(evs[j].Date) {
			return evs[i].Date.Before(evs[j].Date)
		}
		if evs[i].Code != evs[j].Code {
			return evs[i].Code < evs[j].Code
		}
		return evs[i].Type < evs[j].Type
	})
	for _, ev := range evs {
		fmt.Fprintf(h, "%s|%s|%s\n", ev.Date.Format("2006-01-02"), ev.Code, ev.Type)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}
