// Attendance importer for moim.
//
// Usage:
//
//	go run ./cmd/attendance-import -csv marks.csv -program <id> -tenant <tenant> -token <admin token>
//
// The CSV needs a header with member_id and session_date columns plus
// attended and/or report columns holding 1/0, true/false, or Y/N.
// Each filled cell becomes one POST to the admin attendance or reports endpoint.
// Existing marks are overwritten.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Summary tracks import results.
type Summary struct {
	Rows       int64
	Attendance int64
	Reports    int64
	Failed     int64
	Skipped    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to the attendance CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "moim base URL")
	tenantID := flag.String("tenant", "", "Tenant ID for requests")
	programID := flag.String("program", "", "Program ID the marks belong to")
	token := flag.String("token", os.Getenv("MOIM_ADMIN_TOKEN"), "Admin bearer token (default $MOIM_ADMIN_TOKEN)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each failed mark")
	flag.Parse()

	if *csvPath == "" || *tenantID == "" || *programID == "" || *token == "" {
		fmt.Println("Usage: attendance-import -csv marks.csv -tenant <tenant> -program <id> -token <admin token>")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("CSV File:    %s\n", *csvPath)
	fmt.Printf("moim URL:    %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Program ID:  %s\n", *programID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: moim not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	rows, err := readRows(f)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d rows\n", len(rows))

	client := &apiClient{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   *baseURL,
		tenantID:  *tenantID,
		programID: *programID,
		token:     *token,
	}

	start := time.Now()
	summary := runImport(rows, client, *workers, *verbose)
	printSummary(summary, time.Since(start))

	if summary.Failed > 0 {
		os.Exit(2)
	}
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// mark is the admin API payload for one attendance or report mark.
type mark struct {
	MemberID    string `json:"memberId"`
	SessionDate string `json:"sessionDate"`
	Value       bool   `json:"value"`
}

type apiClient struct {
	http      *http.Client
	baseURL   string
	tenantID  string
	programID string
	token     string
}

// post sends one mark to /admin/programs/{id}/{kind}.
func (c *apiClient) post(kind string, m mark) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/admin/programs/%s/%s", c.baseURL, c.programID, kind)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// poster sends one mark. It is satisfied by apiClient.
type poster interface {
	post(kind string, m mark) error
}

func runImport(rows []row, client poster, numWorkers int, verbose bool) *Summary {
	summary := &Summary{}

	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan row, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for r := range work {
				start := time.Now()
				atomic.AddInt64(&summary.Rows, 1)

				if r.Attended == nil && r.Report == nil {
					atomic.AddInt64(&summary.Skipped, 1)
					continue
				}

				for _, m := range []struct {
					kind    string
					value   *bool
					counter *int64
				}{
					{"attendance", r.Attended, &summary.Attendance},
					{"reports", r.Report, &summary.Reports},
				} {
					if m.value == nil {
						continue
					}
					err := client.post(m.kind, mark{MemberID: r.MemberID, SessionDate: r.SessionDate, Value: *m.value})
					if err != nil {
						atomic.AddInt64(&summary.Failed, 1)
						if verbose {
							fmt.Printf("ERROR: line %d %s %s %s -> %v\n", r.Line, m.kind, r.MemberID, r.SessionDate, err)
						}
						continue
					}
					atomic.AddInt64(m.counter, 1)
				}

				atomic.AddInt64(&summary.ProcessingTimeMs, time.Since(start).Milliseconds())
			}
		}()
	}

	for _, r := range rows {
		work <- r
	}
	close(work)

	wg.Wait()

	return summary
}

func printSummary(s *Summary, duration time.Duration) {
	fmt.Println()
	fmt.Println("IMPORT SUMMARY")
	fmt.Printf("   Rows:             %d\n", s.Rows)
	fmt.Printf("   Attendance marks: %d\n", s.Attendance)
	fmt.Printf("   Report marks:     %d\n", s.Reports)
	fmt.Printf("   Skipped rows:     %d\n", s.Skipped)
	fmt.Printf("   Failed marks:     %d\n", s.Failed)
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if s.Rows > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms/row\n", float64(s.ProcessingTimeMs)/float64(s.Rows))
	}
	fmt.Println()
}
