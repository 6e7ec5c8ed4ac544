// Command fulfill triggers fulfillment for an order against a running
// server and prints the minted download links.
//
//	fulfill -order <order-id> [-server http://localhost:8080] [-key <admin-key>] [-ttl 4320] [-uses 3]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type link struct {
	ProductID string    `json:"productId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Remaining int       `json:"remaining"`
}

func main() {
	var (
		server  = flag.String("server", "http://localhost:8080", "server base URL")
		orderID = flag.String("order", "", "order id to fulfill (required)")
		key     = flag.String("key", os.Getenv("ADMIN_KEY"), "admin key (or ADMIN_KEY env)")
		ttl     = flag.Int("ttl", 0, "token validity in minutes (0 = server default)")
		uses    = flag.Int("uses", 0, "max downloads per token (0 = server default)")
	)
	flag.Parse()

	if *orderID == "" {
		fmt.Fprintln(os.Stderr, "Error: -order is required")
		flag.Usage()
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]any{
		"orderId":    *orderID,
		"ttlMinutes": *ttl,
		"maxUses":    *uses,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *server+"/api/fulfill", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if *key != "" {
		req.Header.Set("X-Admin-Key", *key)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading response: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			fmt.Fprintf(os.Stderr, "Error: %s (HTTP %d)\n", failure.Error, resp.StatusCode)
		} else {
			fmt.Fprintf(os.Stderr, "Error: HTTP %d\n", resp.StatusCode)
		}
		os.Exit(1)
	}

	var result struct {
		Links []link `json:"links"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: decoding response: %v\n", err)
		os.Exit(1)
	}

	if len(result.Links) == 0 {
		fmt.Println("No digital items on this order; no links minted.")
		return
	}

	fmt.Printf("Minted %d download link(s) for order %s:\n\n", len(result.Links), *orderID)
	for _, l := range result.Links {
		fmt.Printf("  %s (%s)\n", l.Title, l.ProductID)
		fmt.Printf("    %s\n", l.URL)
		fmt.Printf("    %d download(s), valid until %s\n\n",
			l.Remaining, l.ExpiresAt.Local().Format(time.RFC1123))
	}
}
