// Command diagnose_feeds probes every registered feed source and writes a
// report of which feeds are healthy, redirected, or broken, plus a SQL
// script with suggested fixes. It is an operational tool, not part of the
// worker; run it manually against the production database:
//
//	DATABASE_URL=postgres://... go run ./scripts/diagnose_feeds.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mmcdole/gofeed"
)

const (
	probeTimeout  = 30 * time.Second
	probeInterval = 500 * time.Millisecond
)

type feedDiagnostic struct {
	SourceID     int64  `json:"source_id"`
	URL          string `json:"url"`
	Status       string `json:"status"` // OK, REDIRECT, HTTP_ERROR, PARSE_ERROR, EMPTY, TIMEOUT
	HTTPCode     int    `json:"http_code,omitempty"`
	ItemCount    int    `json:"item_count"`
	LatestItem   string `json:"latest_item,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
}

type feedSource struct {
	ID       int64
	UserID   int64
	URL      string
	IsActive bool
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	sources, err := loadSources(db)
	if err != nil {
		log.Fatalf("failed to load sources: %v", err)
	}
	log.Printf("diagnosing %d feed sources", len(sources))

	diagnostics := make([]feedDiagnostic, 0, len(sources))
	for i, src := range sources {
		log.Printf("[%d/%d] source %d: %s", i+1, len(sources), src.ID, src.URL)
		diagnostics = append(diagnostics, probeFeed(src))
		time.Sleep(probeInterval)
	}

	if err := writeJSONReport(diagnostics); err != nil {
		log.Printf("failed to write JSON report: %v", err)
	}
	if err := writeSQLFixes(diagnostics); err != nil {
		log.Printf("failed to write SQL fixes: %v", err)
	}
	printSummary(diagnostics)
}

func loadSources(db *sql.DB) ([]feedSource, error) {
	rows, err := db.Query("SELECT id, user_id, url, is_active FROM sources ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var sources []feedSource
	for rows.Next() {
		var s feedSource
		if err := rows.Scan(&s.ID, &s.UserID, &s.URL, &s.IsActive); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func probeFeed(src feedSource) feedDiagnostic {
	diag := feedDiagnostic{SourceID: src.ID, URL: src.URL}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		diag.Status = "HTTP_ERROR"
		diag.Error = err.Error()
		return diag
	}
	req.Header.Set("User-Agent", "readflow-diagnostics/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	started := time.Now()
	resp, err := http.DefaultClient.Do(req)
	diag.ResponseTime = time.Since(started).Milliseconds()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			diag.Status = "TIMEOUT"
			diag.Error = fmt.Sprintf("no response within %v", probeTimeout)
		} else {
			diag.Status = "HTTP_ERROR"
			diag.Error = err.Error()
		}
		return diag
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()

	diag.HTTPCode = resp.StatusCode
	if finalURL := resp.Request.URL.String(); finalURL != src.URL {
		diag.RedirectURL = finalURL
	}
	if resp.StatusCode != http.StatusOK {
		diag.Status = "HTTP_ERROR"
		diag.Error = resp.Status
		return diag
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		diag.Status = "PARSE_ERROR"
		diag.Error = err.Error()
		return diag
	}

	diag.ItemCount = len(feed.Items)
	if diag.ItemCount == 0 {
		diag.Status = "EMPTY"
		return diag
	}
	if feed.Items[0].PublishedParsed != nil {
		diag.LatestItem = feed.Items[0].PublishedParsed.Format(time.RFC3339)
	}

	if diag.RedirectURL != "" {
		diag.Status = "REDIRECT"
	} else {
		diag.Status = "OK"
	}
	return diag
}

func writeJSONReport(diagnostics []feedDiagnostic) error {
	f, err := os.Create("feed_diagnostics.json")
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close report: %v", err)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(diagnostics)
}

// writeSQLFixes emits UPDATE statements for redirected feeds and disables
// broken ones. The output is meant to be reviewed before applying.
func writeSQLFixes(diagnostics []feedDiagnostic) error {
	f, err := os.Create("feed_fixes.sql")
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close SQL fixes: %v", err)
		}
	}()

	fmt.Fprintf(f, "-- generated %s, review before applying\n\n", time.Now().Format(time.RFC3339))
	for _, d := range diagnostics {
		if d.RedirectURL != "" && d.RedirectURL != d.URL {
			fmt.Fprintf(f, "UPDATE sources SET url = '%s' WHERE url = '%s'; -- source %d\n",
				sqlEscape(d.RedirectURL), sqlEscape(d.URL), d.SourceID)
		}
	}
	fmt.Fprintln(f)
	for _, d := range diagnostics {
		switch d.Status {
		case "OK", "REDIRECT":
		default:
			fmt.Fprintf(f, "UPDATE sources SET is_active = FALSE WHERE url = '%s'; -- source %d: %s\n",
				sqlEscape(d.URL), d.SourceID, d.Status)
		}
	}
	return nil
}

func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func printSummary(diagnostics []feedDiagnostic) {
	counts := make(map[string]int)
	for _, d := range diagnostics {
		counts[d.Status]++
	}
	healthy := counts["OK"] + counts["REDIRECT"]
	log.Printf("healthy: %d/%d", healthy, len(diagnostics))
	for status, n := range counts {
		log.Printf("  %s: %d", status, n)
	}
	log.Println("reports written: feed_diagnostics.json, feed_fixes.sql")
}
