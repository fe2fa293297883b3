package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"subscription_payments", "client_subscriptions", "payment_merchants", "store_licenses", "clients", "plans"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		plans := []struct {
			Code     string
			Name     string
			PriceIDR int64
			Interval string
		}{
			{"basic-monthly", "Basic Bulanan", 149000, "monthly"},
			{"pro-monthly", "Pro Bulanan", 299000, "monthly"},
			{"pro-yearly", "Pro Tahunan", 2990000, "yearly"},
		}

		var exists int
		for _, p := range plans {
			row := db.Raw("SELECT 1 FROM plans WHERE code = ?", p.Code).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Println("plan already exists:", p.Code)
				continue
			}
			if err := db.Exec(
				`INSERT INTO plans (code, name, price_idr, "interval", trial_days, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, 14, true, now(), now())`,
				p.Code, p.Name, p.PriceIDR, p.Interval).Error; err != nil {
				log.Fatalf("failed to insert plan %s: %v", p.Code, err)
			}
			fmt.Println("Seeded plan:", p.Code)
		}

		demoEmail := "demo@toko-maju.example"
		row := db.Raw("SELECT 1 FROM clients WHERE email = ?", demoEmail).Row()
		if err := row.Scan(&exists); err == nil {
			fmt.Println("demo client already exists:", demoEmail)
			return
		}

		if err := db.Exec(
			"INSERT INTO clients (name, email, phone, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())",
			"Toko Maju", demoEmail, "+628120000001").Error; err != nil {
			log.Fatalf("failed to insert demo client: %v", err)
		}

		var clientID int64
		row = db.Raw("SELECT id FROM clients WHERE email = ?", demoEmail).Row()
		if err := row.Scan(&clientID); err != nil {
			log.Fatalf("failed to read demo client id: %v", err)
		}

		for _, store := range []string{"Toko Maju Pusat", "Toko Maju Cabang 1"} {
			if err := db.Exec(
				"INSERT INTO store_licenses (client_id, store_name, is_active, created_at, updated_at) VALUES (?, ?, true, now(), now())",
				clientID, store).Error; err != nil {
				log.Fatalf("failed to insert store license: %v", err)
			}
		}

		if err := db.Exec(
			"INSERT INTO payment_merchants (client_id, name, gateway, is_default, is_enabled, is_production, server_key, client_key, created_at, updated_at) VALUES (?, ?, 'midtrans', true, true, false, ?, ?, now(), now())",
			clientID, "Toko Maju Sandbox", "SB-Mid-server-demo", "SB-Mid-client-demo").Error; err != nil {
			log.Fatalf("failed to insert demo merchant: %v", err)
		}

		var planID int64
		row = db.Raw("SELECT id FROM plans WHERE code = ?", "basic-monthly").Row()
		if err := row.Scan(&planID); err != nil {
			log.Fatalf("failed to read basic plan id: %v", err)
		}

		trialEnd := time.Now().AddDate(0, 0, 14)
		if err := db.Exec(
			"INSERT INTO client_subscriptions (client_id, plan_id, status, price_idr, current_period_start, current_period_end, trial_ends_at, billing_failure_count, gateway, created_at, updated_at) VALUES (?, ?, 'trialing', 149000, now(), ?, ?, 0, 'midtrans', now(), now())",
			clientID, planID, trialEnd, trialEnd).Error; err != nil {
			log.Fatalf("failed to insert demo subscription: %v", err)
		}

		fmt.Println("Seeded demo client:", demoEmail)
	},
}
