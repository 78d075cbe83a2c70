// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard aggregates enriched orders in DuckDB and serves the
// overview and filter views as a JSON API.
package dashboard

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ordermap/ordermap/sales"
	"github.com/ordermap/ordermap/spatial"
	"github.com/rs/zerolog/log"
	"github.com/uber/h3-go/v4"
)

// H3 resolutions stored for every located order.
const (
	MinH3Resolution = 3
	MaxH3Resolution = 7
)

// PeriodSales is the total of sales in a period ("2003-02", "2003-Q1").
type PeriodSales struct {
	Period string  `json:"period"`
	Sales  float64 `json:"sales"`
	Orders int     `json:"orders"`
}

// CountrySales is the total of sales of a country.
type CountrySales struct {
	Country string  `json:"country"`
	Alpha2  string  `json:"alpha2,omitempty"`
	Alpha3  string  `json:"alpha3,omitempty"`
	Sales   float64 `json:"sales"`
	Orders  int     `json:"orders"`
}

// TerritorySales is the total of sales of a territory.
type TerritorySales struct {
	Territory string  `json:"territory"`
	Name      string  `json:"name"`
	Sales     float64 `json:"sales"`
	Orders    int     `json:"orders"`
}

// QuarterSales is the total of sales of a territory in a quarter.
type QuarterSales struct {
	Territory string  `json:"territory"`
	Quarter   string  `json:"quarter"` // YYYY-Qn
	Sales     float64 `json:"sales"`
}

// CountryMonthSales is the total of sales of a country in a month.
type CountryMonthSales struct {
	Country string  `json:"country"`
	Month   string  `json:"month"` // YYYY-MM
	Sales   float64 `json:"sales"`
}

// HeatmapCell is the weight of an H3 cell: the sales of the orders in it.
type HeatmapCell struct {
	Cell   string        `json:"cell"`
	Center spatial.Point `json:"center"`
	Sales  float64       `json:"sales"`
	Orders int           `json:"orders"`
}

// TerritoryOption is a territory and the countries that have orders in it.
type TerritoryOption struct {
	Territory string   `json:"territory"`
	Name      string   `json:"name"`
	Countries []string `json:"countries"`
}

// FilterOptions lists the values an OrderFilter can take.
type FilterOptions struct {
	MinDate      time.Time          `json:"min_date"`
	MaxDate      time.Time          `json:"max_date"`
	DealSizes    []string           `json:"deal_sizes"`
	ProductLines []string           `json:"product_lines"`
	Statuses     []string           `json:"statuses"`
	Territories  []*TerritoryOption `json:"territories"`
	Countries    []string           `json:"countries"`
	Sales        Range              `json:"sales"`
	PriceEach    Range              `json:"price_each"`
	MSRP         Range              `json:"msrp"`
}

// Repository stores enriched orders and answers the dashboard queries.
type Repository interface {
	// CreateSchema creates the orders table.
	CreateSchema() error
	// SaveOrders replaces the stored orders.
	SaveOrders(orders []*sales.Order) error

	//////// Quick overview
	// MonthlySales returns the sales per month, in chronological order.
	MonthlySales() ([]*PeriodSales, error)
	// CountrySales returns the sales per country, highest first.
	CountrySales() ([]*CountrySales, error)
	// TerritorySales returns the sales per territory, highest first.
	TerritorySales() ([]*TerritorySales, error)
	// QuarterlySales returns the sales per territory and quarter.
	QuarterlySales() ([]*QuarterSales, error)

	//////// Advanced filter
	// Orders returns the orders matching filter.
	Orders(filter *OrderFilter) ([]*sales.Order, error)
	// CountryMonthlySales returns the sales per country and month of the
	// orders matching filter, highest first.
	CountryMonthlySales(filter *OrderFilter) ([]*CountryMonthSales, error)
	// Heatmap returns the sales of the located orders matching filter,
	// summed per H3 cell at the given resolution.
	Heatmap(filter *OrderFilter, resolution int) ([]*HeatmapCell, error)
	// FilterOptions returns the distinct values and ranges of the stored
	// orders.
	FilterOptions() (*FilterOptions, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a repository on a DuckDB database.
func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_number       INTEGER NOT NULL,
			order_line_number  INTEGER NOT NULL,
			quantity_ordered   INTEGER NOT NULL,
			price_each         DOUBLE NOT NULL,
			sales              DOUBLE NOT NULL,
			order_date         TIMESTAMP NOT NULL,
			status             VARCHAR,
			qtr_id             INTEGER,
			month_id           INTEGER,
			year_id            INTEGER,
			product_line       VARCHAR,
			msrp               DOUBLE,
			product_code       VARCHAR,
			customer_name      VARCHAR,
			phone              VARCHAR,
			address_line1      VARCHAR,
			address_line2      VARCHAR,
			city               VARCHAR,
			state              VARCHAR,
			postal_code        VARCHAR,
			country            VARCHAR,
			territory          VARCHAR,
			contact_last_name  VARCHAR,
			contact_first_name VARCHAR,
			deal_size          VARCHAR,
			lat                DOUBLE,
			lng                DOUBLE,
			alpha2             VARCHAR,
			alpha3             VARCHAR,
			h3_res3            BIGINT,
			h3_res4            BIGINT,
			h3_res5            BIGINT,
			h3_res6            BIGINT,
			h3_res7            BIGINT
		)
	`)
	if err != nil {
		return fmt.Errorf("creating orders table: %w", err)
	}

	return nil
}

// h3Cells returns the cells of p at every stored resolution, nil values when
// p is nil.
func h3Cells(p *spatial.Point) ([]any, error) {
	cells := make([]any, MaxH3Resolution-MinH3Resolution+1)
	if p == nil {
		return cells, nil
	}

	for res := MinH3Resolution; res <= MaxH3Resolution; res++ {
		cell, err := p.Cell(res)
		if err != nil {
			return nil, err
		}

		cells[res-MinH3Resolution] = int64(cell)
	}

	return cells, nil
}

// nve returns nil for empty strings.
func nve(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// nvf returns nil for nil pointers.
func nvf(f *float64) any {
	if f == nil {
		return nil
	}

	return *f
}

func (r *sqlRepository) SaveOrders(orders []*sales.Order) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error().Err(err).Msg("rolling back orders transaction")
		}
	}()

	if _, err := tx.Exec("DELETE FROM orders"); err != nil {
		return fmt.Errorf("deleting orders: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO orders (
			order_number, order_line_number, quantity_ordered, price_each, sales,
			order_date, status, qtr_id, month_id, year_id,
			product_line, msrp, product_code,
			customer_name, phone, address_line1, address_line2, city, state, postal_code,
			country, territory, contact_last_name, contact_first_name, deal_size,
			lat, lng, alpha2, alpha3,
			h3_res3, h3_res4, h3_res5, h3_res6, h3_res7
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		cells, err := h3Cells(o.Location())
		if err != nil {
			return fmt.Errorf("computing h3 cells for order %d: %w", o.OrderNumber, err)
		}

		args := []any{
			int64(o.OrderNumber),
			int64(o.OrderLineNumber),
			int64(o.QuantityOrdered),
			o.PriceEach,
			o.Sales,
			o.OrderDate,
			o.Status,
			int64(o.QtrID),
			int64(o.MonthID),
			int64(o.YearID),
			o.ProductLine,
			o.MSRP,
			o.ProductCode,
			o.CustomerName,
			nve(o.Phone),
			nve(o.AddressLine1),
			nve(o.AddressLine2),
			nve(o.City),
			nve(o.State),
			nve(o.PostalCode),
			o.Country,
			o.Territory,
			o.ContactLastName,
			o.ContactFirstName,
			o.DealSize,
			nvf(o.Lat),
			nvf(o.Long),
			nve(o.Alpha2),
			nve(o.Alpha3),
		}

		if _, err := stmt.Exec(append(args, cells...)...); err != nil {
			return fmt.Errorf("inserting order %d line %d: %w", o.OrderNumber, o.OrderLineNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing orders: %w", err)
	}

	log.Debug().Int("orders", len(orders)).Msg("saved orders")

	return nil
}

func (r *sqlRepository) periodSales(query string, args ...any) ([]*PeriodSales, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*PeriodSales

	for rows.Next() {
		var p PeriodSales
		if err := rows.Scan(&p.Period, &p.Sales, &p.Orders); err != nil {
			return nil, err
		}

		result = append(result, &p)
	}

	return result, rows.Err()
}

func (r *sqlRepository) MonthlySales() ([]*PeriodSales, error) {
	result, err := r.periodSales(`
		SELECT strftime(order_date, '%Y-%m') AS month, SUM(sales), COUNT(*)
		FROM orders
		GROUP BY month
		ORDER BY month
	`)
	if err != nil {
		return nil, fmt.Errorf("querying monthly sales: %w", err)
	}

	return result, nil
}

func (r *sqlRepository) CountrySales() ([]*CountrySales, error) {
	rows, err := r.db.Query(`
		SELECT country, COALESCE(MAX(alpha2), ''), COALESCE(MAX(alpha3), ''), SUM(sales) AS total, COUNT(*)
		FROM orders
		GROUP BY country
		ORDER BY total DESC, country
	`)
	if err != nil {
		return nil, fmt.Errorf("querying country sales: %w", err)
	}
	defer rows.Close()

	var result []*CountrySales

	for rows.Next() {
		var c CountrySales
		if err := rows.Scan(&c.Country, &c.Alpha2, &c.Alpha3, &c.Sales, &c.Orders); err != nil {
			return nil, fmt.Errorf("scanning country sales: %w", err)
		}

		result = append(result, &c)
	}

	return result, rows.Err()
}

func (r *sqlRepository) TerritorySales() ([]*TerritorySales, error) {
	rows, err := r.db.Query(`
		SELECT territory, SUM(sales) AS total, COUNT(*)
		FROM orders
		GROUP BY territory
		ORDER BY total DESC, territory
	`)
	if err != nil {
		return nil, fmt.Errorf("querying territory sales: %w", err)
	}
	defer rows.Close()

	var result []*TerritorySales

	for rows.Next() {
		var t TerritorySales
		if err := rows.Scan(&t.Territory, &t.Sales, &t.Orders); err != nil {
			return nil, fmt.Errorf("scanning territory sales: %w", err)
		}

		t.Name = sales.TerritoryName(t.Territory)
		result = append(result, &t)
	}

	return result, rows.Err()
}

func (r *sqlRepository) QuarterlySales() ([]*QuarterSales, error) {
	rows, err := r.db.Query(`
		SELECT territory, year_id, qtr_id, SUM(sales)
		FROM orders
		GROUP BY territory, year_id, qtr_id
		ORDER BY territory, year_id, qtr_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying quarterly sales: %w", err)
	}
	defer rows.Close()

	var result []*QuarterSales

	for rows.Next() {
		var (
			q             QuarterSales
			year, quarter int
		)

		if err := rows.Scan(&q.Territory, &year, &quarter, &q.Sales); err != nil {
			return nil, fmt.Errorf("scanning quarterly sales: %w", err)
		}

		q.Quarter = fmt.Sprintf("%d-Q%d", year, quarter)
		result = append(result, &q)
	}

	return result, rows.Err()
}

func (r *sqlRepository) Orders(filter *OrderFilter) ([]*sales.Order, error) {
	where, args := filter.where()

	query := `
		SELECT
			order_number, order_line_number, quantity_ordered, price_each, sales,
			order_date, status, qtr_id, month_id, year_id,
			product_line, msrp, product_code,
			customer_name, COALESCE(phone, ''), COALESCE(address_line1, ''), COALESCE(address_line2, ''),
			COALESCE(city, ''), COALESCE(state, ''), COALESCE(postal_code, ''),
			country, territory, contact_last_name, contact_first_name, deal_size,
			lat, lng, COALESCE(alpha2, ''), COALESCE(alpha3, '')
		FROM orders
		WHERE ` + where + `
		ORDER BY order_date, order_number, order_line_number`

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var result []*sales.Order

	for rows.Next() {
		var (
			o                      sales.Order
			number, line, quantity int64
			quarter, month, year   int64
		)

		err := rows.Scan(
			&number, &line, &quantity, &o.PriceEach, &o.Sales,
			&o.OrderDate, &o.Status, &quarter, &month, &year,
			&o.ProductLine, &o.MSRP, &o.ProductCode,
			&o.CustomerName, &o.Phone, &o.AddressLine1, &o.AddressLine2,
			&o.City, &o.State, &o.PostalCode,
			&o.Country, &o.Territory, &o.ContactLastName, &o.ContactFirstName, &o.DealSize,
			&o.Lat, &o.Long, &o.Alpha2, &o.Alpha3,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}

		o.OrderNumber = uint32(number)
		o.OrderLineNumber = uint32(line)
		o.QuantityOrdered = uint32(quantity)
		o.QtrID = uint8(quarter)
		o.MonthID = uint8(month)
		o.YearID = uint16(year)

		result = append(result, &o)
	}

	return result, rows.Err()
}

func (r *sqlRepository) CountryMonthlySales(filter *OrderFilter) ([]*CountryMonthSales, error) {
	where, args := filter.where()

	rows, err := r.db.Query(`
		SELECT country, strftime(order_date, '%Y-%m') AS month, SUM(sales) AS total
		FROM orders
		WHERE `+where+`
		GROUP BY country, month
		ORDER BY total DESC, country, month
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying country monthly sales: %w", err)
	}
	defer rows.Close()

	var result []*CountryMonthSales

	for rows.Next() {
		var c CountryMonthSales
		if err := rows.Scan(&c.Country, &c.Month, &c.Sales); err != nil {
			return nil, fmt.Errorf("scanning country monthly sales: %w", err)
		}

		result = append(result, &c)
	}

	return result, rows.Err()
}

func (r *sqlRepository) Heatmap(filter *OrderFilter, resolution int) ([]*HeatmapCell, error) {
	if resolution < MinH3Resolution || resolution > MaxH3Resolution {
		return nil, fmt.Errorf("h3 resolution %d out of range [%d, %d]", resolution, MinH3Resolution, MaxH3Resolution)
	}

	where, args := filter.where()
	column := fmt.Sprintf("h3_res%d", resolution)

	rows, err := r.db.Query(`
		SELECT `+column+` AS cell, SUM(sales) AS total, COUNT(*)
		FROM orders
		WHERE `+column+` IS NOT NULL AND `+where+`
		GROUP BY cell
		ORDER BY total DESC, cell
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying heatmap: %w", err)
	}
	defer rows.Close()

	var result []*HeatmapCell

	for rows.Next() {
		var (
			hc   HeatmapCell
			cell int64
		)

		if err := rows.Scan(&cell, &hc.Sales, &hc.Orders); err != nil {
			return nil, fmt.Errorf("scanning heatmap: %w", err)
		}

		c := h3.Cell(cell)

		hc.Center, err = spatial.CellCenter(c)
		if err != nil {
			return nil, fmt.Errorf("locating cell %s: %w", c, err)
		}

		hc.Cell = c.String()
		result = append(result, &hc)
	}

	return result, rows.Err()
}

func (r *sqlRepository) distinct(column string) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT ` + column + ` FROM orders WHERE ` + column + ` IS NOT NULL ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("querying distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning distinct %s: %w", column, err)
		}

		values = append(values, v)
	}

	return values, rows.Err()
}

func (r *sqlRepository) FilterOptions() (*FilterOptions, error) {
	opts := &FilterOptions{}

	var (
		minDate, maxDate                                         sql.NullTime
		minSales, maxSales, minPrice, maxPrice, minMSRP, maxMSRP sql.NullFloat64
	)

	err := r.db.QueryRow(`
		SELECT MIN(order_date), MAX(order_date),
			MIN(sales), MAX(sales),
			MIN(price_each), MAX(price_each),
			MIN(msrp), MAX(msrp)
		FROM orders
	`).Scan(&minDate, &maxDate, &minSales, &maxSales, &minPrice, &maxPrice, &minMSRP, &maxMSRP)
	if err != nil {
		return nil, fmt.Errorf("querying ranges: %w", err)
	}

	opts.MinDate, opts.MaxDate = minDate.Time, maxDate.Time
	opts.Sales = nullRange(minSales, maxSales)
	opts.PriceEach = nullRange(minPrice, maxPrice)
	opts.MSRP = nullRange(minMSRP, maxMSRP)

	for _, d := range []struct {
		column string
		dest   *[]string
	}{
		{"deal_size", &opts.DealSizes},
		{"product_line", &opts.ProductLines},
		{"status", &opts.Statuses},
		{"country", &opts.Countries},
	} {
		if *d.dest, err = r.distinct(d.column); err != nil {
			return nil, err
		}
	}

	rows, err := r.db.Query(`SELECT DISTINCT territory, country FROM orders ORDER BY territory, country`)
	if err != nil {
		return nil, fmt.Errorf("querying territories: %w", err)
	}
	defer rows.Close()

	opts.Territories = []*TerritoryOption{}

	var current *TerritoryOption

	for rows.Next() {
		var territory, country string
		if err := rows.Scan(&territory, &country); err != nil {
			return nil, fmt.Errorf("scanning territories: %w", err)
		}

		if current == nil || current.Territory != territory {
			current = &TerritoryOption{Territory: territory, Name: sales.TerritoryName(territory)}
			opts.Territories = append(opts.Territories, current)
		}

		current.Countries = append(current.Countries, country)
	}

	return opts, rows.Err()
}

func nullRange(lo, hi sql.NullFloat64) Range {
	var r Range

	if lo.Valid {
		r.Min = &lo.Float64
	}

	if hi.Valid {
		r.Max = &hi.Float64
	}

	return r
}
