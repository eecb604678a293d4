package database

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

var (
	seedFirstNames = []string{
		"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda",
		"William", "Barbara", "David", "Elizabeth", "Richard", "Susan", "Joseph", "Jessica",
	}
	seedLastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Wilson", "Anderson", "Thomas",
	}
	seedCountries  = []string{"USA", "Canada", "UK", "Germany", "France", "Australia", "Japan", "India"}
	seedCategories = []string{"Electronics", "Clothing", "Home & Garden", "Sports", "Books", "Toys"}
	seedProducts   = map[string][]string{
		"Electronics":   {"Laptop", "Smartphone", "Tablet", "Headphones", "Smart Watch", "Camera"},
		"Clothing":      {"T-Shirt", "Jeans", "Jacket", "Sneakers", "Dress", "Hoodie"},
		"Home & Garden": {"Coffee Maker", "Blender", "Vacuum Cleaner", "Plant Pot", "Lamp", "Rug"},
		"Sports":        {"Running Shoes", "Yoga Mat", "Dumbbell Set", "Tennis Racket", "Bicycle", "Backpack"},
		"Books":         {"Fiction Novel", "Cookbook", "Biography", "Tech Manual", "Mystery Thriller", "Self-Help"},
		"Toys":          {"Board Game", "Action Figure", "Puzzle", "Building Blocks", "Doll", "RC Car"},
	}
	seedStatuses = []string{"pending", "processing", "shipped", "delivered", "cancelled"}
	seedCities   = []string{"New York", "Los Angeles", "London", "Berlin", "Paris", "Sydney", "Tokyo", "Mumbai"}
	seedModels   = []string{"A", "B", "C", "D"}
)

// SeedOptions sizes the generated sample dataset.
type SeedOptions struct {
	Customers int
	Products  int
	Orders    int

	// Rand supplies the randomness source. A fixed-seed source makes the
	// dataset reproducible.
	Rand *rand.Rand
}

func (o *SeedOptions) applyDefaults() {
	if o.Customers <= 0 {
		o.Customers = 50
	}
	if o.Products <= 0 {
		o.Products = 100
	}
	if o.Orders <= 0 {
		o.Orders = 200
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// Seed populates an empty database with a sample e-commerce dataset. Each
// order carries 1 to 5 line items whose subtotals sum to the order total.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) error {
	opts.applyDefaults()
	r := opts.Rand

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for i := 1; i <= opts.Customers; i++ {
		created := now.AddDate(0, 0, -r.Intn(366))
		_, err := tx.ExecContext(ctx,
			`INSERT INTO customers (email, first_name, last_name, phone, country, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("customer%d@example.com", i),
			seedFirstNames[r.Intn(len(seedFirstNames))],
			seedLastNames[r.Intn(len(seedLastNames))],
			fmt.Sprintf("+1-555-%04d", 1000+r.Intn(9000)),
			seedCountries[r.Intn(len(seedCountries))],
			created, created,
		)
		if err != nil {
			return fmt.Errorf("failed to seed customer %d: %w", i, err)
		}
	}

	prices := make([]float64, opts.Products+1)
	for i := 1; i <= opts.Products; i++ {
		category := seedCategories[r.Intn(len(seedCategories))]
		name := seedProducts[category][r.Intn(len(seedProducts[category]))]
		price := roundCents(9.99 + r.Float64()*990)
		prices[i] = price
		created := now.AddDate(0, 0, -r.Intn(181))
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (sku, name, description, category, price, stock_quantity, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("SKU-%s-%04d", skuPrefix(category), i),
			fmt.Sprintf("%s - Model %s", name, seedModels[r.Intn(len(seedModels))]),
			fmt.Sprintf("High-quality %s from %s collection", name, category),
			category, price, r.Intn(501), created, created,
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %d: %w", i, err)
		}
	}

	for i := 1; i <= opts.Orders; i++ {
		customerID := 1 + r.Intn(opts.Customers)
		orderDate := now.AddDate(0, 0, -r.Intn(91))

		res, err := tx.ExecContext(ctx,
			`INSERT INTO orders (customer_id, order_date, status, total_amount, shipping_address, created_at, updated_at)
			 VALUES (?, ?, ?, 0, ?, ?, ?)`,
			customerID, orderDate,
			seedStatuses[r.Intn(len(seedStatuses))],
			fmt.Sprintf("%d Main St, %s", 100+r.Intn(9900), seedCities[r.Intn(len(seedCities))]),
			orderDate, orderDate,
		)
		if err != nil {
			return fmt.Errorf("failed to seed order %d: %w", i, err)
		}
		orderID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to seed order %d: %w", i, err)
		}

		total := 0.0
		for _, productID := range samplePicks(r, opts.Products, 1+r.Intn(5)) {
			quantity := 1 + r.Intn(3)
			subtotal := roundCents(float64(quantity) * prices[productID])
			total += subtotal
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
				 VALUES (?, ?, ?, ?, ?)`,
				orderID, productID, quantity, prices[productID], subtotal,
			)
			if err != nil {
				return fmt.Errorf("failed to seed order %d items: %w", i, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET total_amount = ? WHERE id = ?`, roundCents(total), orderID)
		if err != nil {
			return fmt.Errorf("failed to seed order %d total: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	s.logger.Info("Seeded sample dataset.",
		"customers", opts.Customers, "products", opts.Products, "orders", opts.Orders)
	return nil
}

func skuPrefix(category string) string {
	prefix := ""
	for _, r := range category {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r >= 'A' && r <= 'Z' {
			prefix += string(r)
		}
		if len(prefix) == 3 {
			break
		}
	}
	return prefix
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// samplePicks returns n distinct product IDs drawn from 1..total.
func samplePicks(r *rand.Rand, total, n int) []int {
	if n > total {
		n = total
	}
	picked := make(map[int]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		id := 1 + r.Intn(total)
		if picked[id] {
			continue
		}
		picked[id] = true
		out = append(out, id)
	}
	return out
}
