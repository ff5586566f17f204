// stock-admin is an operator tool for the license inventory: it imports
// key files into the stock pools and reports pool levels, without going
// through the HTTP API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gamekey-store/config"
	"gamekey-store/internal/database"
	"gamekey-store/internal/logging"
)

func main() {
	var (
		importFile  = flag.String("import", "", "file with one license key per line to import")
		productID   = flag.String("product", "", "product id the imported keys belong to (empty = general stock)")
		variantID   = flag.String("variant", "", "variant id the imported keys belong to (requires -product)")
		productName = flag.String("name", "", "product name stamped on imported keys")
		summary     = flag.Bool("summary", false, "print the stock summary")
		pending     = flag.Bool("pending", false, "list pending placeholder keys awaiting restock")
	)
	flag.Parse()

	if *importFile == "" && !*summary && !*pending {
		flag.Usage()
		os.Exit(2)
	}
	if *variantID != "" && *productID == "" {
		fmt.Fprintln(os.Stderr, "-variant requires -product")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LoggingConfig)

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *importFile != "" {
		if err := runImport(ctx, repo, *importFile, *productID, *variantID, *productName); err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
	}
	if *summary {
		if err := printSummary(ctx, repo); err != nil {
			fmt.Fprintf(os.Stderr, "summary failed: %v\n", err)
			os.Exit(1)
		}
	}
	if *pending {
		if err := printPending(ctx, repo); err != nil {
			fmt.Fprintf(os.Stderr, "pending list failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runImport(ctx context.Context, repo *database.Repository, path, productID, variantID, productName string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key == "" || strings.HasPrefix(key, "#") {
			continue
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no keys found in %s", path)
	}

	var pid, vid, name *string
	if productID != "" {
		pid = &productID
	}
	if variantID != "" {
		vid = &variantID
	}
	if productName != "" {
		name = &productName
	}

	added, err := repo.BulkAddLicenses(ctx, keys, pid, vid, name)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d of %d keys (%d duplicates skipped)\n", added, len(keys), len(keys)-added)
	return nil
}

func printSummary(ctx context.Context, repo *database.Repository) error {
	summary, err := repo.GetStockSummary(ctx)
	if err != nil {
		return err
	}
	counts, err := repo.GetStockCounts(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("total unused:     %d\n", summary.TotalUnused)
	fmt.Printf("general stock:    %d\n", summary.GeneralStock)
	fmt.Printf("product specific: %d\n", summary.ProductSpecific)
	fmt.Printf("variant specific: %d\n", summary.VariantSpecific)
	fmt.Println()
	fmt.Printf("general pool: %d\n", counts.General)
	for pid, n := range counts.ByProduct {
		fmt.Printf("product %s: %d\n", pid, n)
	}
	for vid, n := range counts.ByVariant {
		fmt.Printf("variant %s: %d\n", vid, n)
	}
	return nil
}

func printPending(ctx context.Context, repo *database.Repository) error {
	status := database.LicensePending
	licenses, err := repo.ListLicenses(ctx, &status, 500)
	if err != nil {
		return err
	}
	if len(licenses) == 0 {
		fmt.Println("no pending placeholders")
		return nil
	}
	for _, lic := range licenses {
		email := ""
		if lic.CustomerEmail != nil {
			email = *lic.CustomerEmail
		}
		order := ""
		if lic.OrderID != nil {
			order = *lic.OrderID
		}
		fmt.Printf("%s  order=%s  customer=%s\n", lic.LicenseKey, order, email)
	}
	return nil
}
