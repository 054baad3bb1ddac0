package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yourusername/quantstream/pkg/model"
)

// ParsePairsFile reads preset pair selections, one per line:
//
//	BASE HEDGE [TIMEFRAME] [WINDOW]
//
// e.g. "BTCUSDT ETHUSDT 1m 50". Blank lines and '#' comments are skipped;
// missing fields take the selection defaults.
func ParsePairsFile(path string) ([]model.Selection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pairs file: %w", err)
	}
	defer file.Close()

	var pairs []model.Selection
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		sel, err := parsePairLine(line)
		if err != nil {
			return nil, fmt.Errorf("pairs file line %d: %w", lineNum, err)
		}
		pairs = append(pairs, sel)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}
	return pairs, nil
}

func parsePairLine(line string) (model.Selection, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 || len(parts) > 4 {
		return model.Selection{}, fmt.Errorf("expected 2-4 fields, got %d", len(parts))
	}

	sel := model.Selection{BaseSymbol: parts[0], HedgeSymbol: parts[1]}
	if len(parts) > 2 {
		tf, err := model.ParseTimeframe(parts[2])
		if err != nil {
			return model.Selection{}, err
		}
		sel.Timeframe = tf
	}
	if len(parts) > 3 {
		w, err := strconv.Atoi(parts[3])
		if err != nil {
			return model.Selection{}, fmt.Errorf("window %q: %w", parts[3], err)
		}
		sel.WindowSize = w
	}

	sel = sel.Normalize()
	if err := sel.Validate(); err != nil {
		return model.Selection{}, err
	}
	return sel, nil
}

// SymbolsOf returns the distinct symbols of pairs, in first-seen order.
func SymbolsOf(pairs []model.Selection, extra ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		add(s)
	}
	for _, p := range pairs {
		add(p.BaseSymbol)
		add(p.HedgeSymbol)
	}
	return out
}
