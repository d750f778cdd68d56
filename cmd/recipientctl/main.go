/**
 * @description
 * Operator tool to inspect and delete Flutterwave transfer recipients by id.
 * Use it to clean up recipients left behind by failed registrations that the
 * cleanup consumer could not remove.
 *
 * Usage:
 *   go run ./cmd/recipientctl [-yes] <recipient-id>
 *
 * Example:
 *   go run ./cmd/recipientctl rcb_3f2b1c9d0e
 *
 * @dependencies
 * - The service's config package (FLUTTERWAVE_* settings) and Flutterwave client.
 * - github.com/joho/godotenv: loads .env files for local use.
 */
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/transfa/withdrawal-account-service/internal/app"
	"github.com/transfa/withdrawal-account-service/internal/config"
	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
)

func main() {
	assumeYes := flag.Bool("yes", false, "delete without asking for confirmation")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: recipientctl [-yes] <recipient-id>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	recipientID := strings.TrimSpace(flag.Arg(0))

	// Missing files are fine; the environment may already be populated.
	for _, path := range []string{"../.env", ".env"} {
		_ = godotenv.Load(path)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.FlutterwaveClientID == "" || cfg.FlutterwaveClientSecret == "" {
		log.Fatal("FLUTTERWAVE_CLIENT_ID and FLUTTERWAVE_CLIENT_SECRET are required")
	}

	baseURL := cfg.FlutterwaveBaseURL
	if baseURL == "" {
		if baseURL, err = flutterwave.ResolveBaseURL(cfg.FlutterwaveEnv); err != nil {
			log.Fatalf("Invalid FLUTTERWAVE_ENV: %v", err)
		}
	}
	client := flutterwave.NewClient(baseURL, flutterwave.NewClientCredentialsTokenSource(cfg.FlutterwaveTokenURL, cfg.FlutterwaveClientID, cfg.FlutterwaveClientSecret))
	fmt.Printf("Using Flutterwave %s environment: %s\n", cfg.FlutterwaveEnv, client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accessToken, err := client.AccessToken(ctx)
	if err != nil {
		log.Fatalf("Failed to get access token: %v", err)
	}

	fmt.Printf("Fetching transfer recipient %s\n", recipientID)
	recipient, err := client.GetTransferRecipient(ctx, accessToken, recipientID, uuid.NewString())
	if err != nil {
		if flutterwave.IsNotFound(err) {
			fmt.Println("Recipient not found; nothing to delete.")
			return
		}
		log.Fatalf("Failed to fetch recipient: %v", err)
	}
	printRecipient(recipient)

	if !*assumeYes && !confirm("\nAre you sure you want to delete this recipient? (yes/no): ") {
		fmt.Println("Deletion cancelled.")
		return
	}

	fmt.Printf("Deleting transfer recipient %s...\n", recipientID)
	if err := client.DeleteTransferRecipient(ctx, accessToken, recipientID, uuid.NewString()); err != nil {
		log.Fatalf("Failed to delete recipient: %v", err)
	}
	fmt.Printf("Deleted transfer recipient %s\n", recipientID)
}

func printRecipient(r *domain.TransferRecipient) {
	fmt.Println("Recipient details:")
	fmt.Printf("  ID: %s\n", r.ID)
	fmt.Printf("  Type: %s\n", r.Type)
	if r.Currency != "" {
		fmt.Printf("  Currency: %s\n", r.Currency)
	}
	if r.Name != nil {
		fmt.Printf("  Name: %s\n", strings.Join(strings.Fields(r.Name.First+" "+r.Name.Middle+" "+r.Name.Last), " "))
	}
	if r.Email != "" {
		fmt.Printf("  Email: %s\n", r.Email)
	}
	if r.Bank != nil {
		fmt.Printf("  Bank: %s %s\n", r.Bank.Name, r.Bank.Code)
		fmt.Printf("  Account: %s\n", app.MaskAccountNumber(r.Bank.AccountNumber))
	}
	if r.MobileMoney != nil {
		fmt.Printf("  Mobile money: %s %s\n", r.MobileMoney.Network, app.MaskAccountNumber(r.MobileMoney.MSISDN))
	}
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}
