package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

type counts struct {
	Total   int64
	Covered int64
}

type ranked struct {
	Name     string
	Total    int64
	Covered  int64
	CoverPct float64
}

func main() {
	var (
		coverFile = flag.String("coverprofile", "coverage.out", "path to coverprofile")
		topN      = flag.Int("top", 30, "how many entries to print")
		minTotal  = flag.Int64("min-total", 1, "min statements to include")
		byPackage = flag.Bool("by-package", false, "aggregate per package instead of per file")
	)
	flag.Parse()

	stats, err := readCoverProfile(*coverFile, *byPackage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coverrank: %v\n", err)
		os.Exit(1)
	}

	list := make([]ranked, 0, len(stats))
	for name, st := range stats {
		if st.Total < *minTotal {
			continue
		}
		pct := 0.0
		if st.Total > 0 {
			pct = float64(st.Covered) * 100.0 / float64(st.Total)
		}
		list = append(list, ranked{
			Name:     name,
			Total:    st.Total,
			Covered:  st.Covered,
			CoverPct: pct,
		})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CoverPct == list[j].CoverPct {
			return list[i].Total > list[j].Total
		}
		return list[i].CoverPct < list[j].CoverPct
	})

	if *topN > len(list) {
		*topN = len(list)
	}

	unit := "files"
	if *byPackage {
		unit = "packages"
	}
	fmt.Printf("=== Worst %s by coverage (weighted) ===\n", unit)
	for i := 0; i < *topN; i++ {
		s := list[i]
		fmt.Printf("%6.2f%%  %6d/%-6d  %s\n", s.CoverPct, s.Covered, s.Total, s.Name)
	}

	var tot, cov int64
	for _, s := range list {
		tot += s.Total
		cov += s.Covered
	}
	overall := 0.0
	if tot > 0 {
		overall = float64(cov) * 100.0 / float64(tot)
	}
	fmt.Printf("\nOverall (%s included): %.2f%%  %d/%d\n", unit, overall, cov, tot)
}

// coverprofile line format:
// <file>:<startLine>.<startCol>,<endLine>.<endCol> <numStmts> <count>
func readCoverProfile(profile string, byPackage bool) (map[string]*counts, error) {
	f, err := os.Open(profile)
	if err != nil {
		return nil, fmt.Errorf("open coverprofile: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	stats := map[string]*counts{}

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		return nil, fmt.Errorf("empty coverprofile")
	}
	if !strings.HasPrefix(sc.Text(), "mode:") {
		return nil, fmt.Errorf("missing mode line: %q", sc.Text())
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid cover line: %q", line)
		}

		idx := strings.Index(parts[0], ":")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid file/range: %q", parts[0])
		}
		name := parts[0][:idx]
		if byPackage {
			name = path.Dir(name)
		}

		numStmts, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse numStmts %q: %w", parts[1], err)
		}
		count, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse count %q: %w", parts[2], err)
		}

		st := stats[name]
		if st == nil {
			st = &counts{}
			stats[name] = st
		}

		st.Total += numStmts
		if count > 0 {
			st.Covered += numStmts
		}
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return stats, nil
}
