// Command simulate fires concurrent booking requests at a single
// (doctor, date, time) slot and reports the outcome distribution. With
// the reservation engine working correctly exactly one request wins a
// 201; the rest surface 409 conflicts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careclinic/slot-reservation-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	baseURL := flag.String("url", "http://127.0.0.1:8080", "api-server base URL")
	workers := flag.Int("workers", 25, "concurrent booking attempts")
	date := flag.String("date", time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"), "target date")
	slot := flag.String("time", "10:00", "target slot start time")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 5)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, err := pickUser(ctx, pool, "doctor")
	if err != nil {
		log.Fatalf("pick doctor: %v", err)
	}
	patients, err := pickUsers(ctx, pool, "patient", *workers)
	if err != nil {
		log.Fatalf("pick patients: %v", err)
	}
	log.Printf("targeting doctor=%s date=%s time=%s with %d patients", doctorID, *date, *slot, len(patients))

	results := run(*baseURL, doctorID, patients, *date, *slot)

	codes := make([]int, 0, len(results))
	for code := range results {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, results[code])
	}
	if results[http.StatusCreated] == 1 {
		fmt.Println("OK: exactly one booking won the slot")
	} else {
		fmt.Printf("FAIL: expected 1 winner, got %d\n", results[http.StatusCreated])
		os.Exit(1)
	}
}

func run(baseURL string, doctorID uuid.UUID, patients []uuid.UUID, date, slot string) map[int]int {
	client := &http.Client{Timeout: 10 * time.Second}

	var mu sync.Mutex
	results := make(map[int]int)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, patientID := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start

			code, err := book(client, baseURL, doctorID, patientID, date, slot)
			if err != nil {
				log.Printf("booking request failed: %v", err)
				code = -1
			}

			mu.Lock()
			results[code]++
			mu.Unlock()
		}(patientID)
	}

	close(start)
	wg.Wait()
	return results
}

func book(client *http.Client, baseURL string, doctorID, patientID uuid.UUID, date, slot string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"doctor_id": doctorID.String(),
		"date":      date,
		"time":      slot,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", patientID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func pickUser(ctx context.Context, pool *pgxpool.Pool, role string) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE role = $1 LIMIT 1`, role).Scan(&id)
	return id, err
}

func pickUsers(ctx context.Context, pool *pgxpool.Pool, role string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = $1 LIMIT $2`, role, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
