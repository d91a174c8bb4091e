// File: cmd/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"elearn-entitlements/internal/config"
	"elearn-entitlements/internal/domain/model"
	pg "elearn-entitlements/internal/infra/db/postgres"
)

// Seeds a small product catalog for exercising the payment flow locally.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	products := pg.NewProductRepo(pool)

	seed := []struct {
		Kind  model.ProductKind
		Title string
		Price int64
	}{
		{model.ProductSubcourse, "Linear Algebra - Module 1", 49_00},
		{model.ProductSubcourse, "Linear Algebra - Module 2", 49_00},
		{model.ProductRecordedLessons, "Linear Algebra - Recordings", 29_00},
		{model.ProductInternshipLetter, "Internship Letter - Data Track", 99_00},
	}

	now := time.Now()
	for _, s := range seed {
		p := &model.Product{
			ID:        uuid.NewString(),
			Kind:      s.Kind,
			Title:     s.Title,
			Price:     s.Price,
			Currency:  "USD",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := products.Save(ctx, nil, p); err != nil {
			log.Fatalf("seed %q: %v", s.Title, err)
		}
		fmt.Printf("seeded: %s (id=%s, kind=%s, price=%d USD minor)\n", p.Title, p.ID, p.Kind, p.Price)
	}

	fmt.Println("seeding complete")
}
