// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package sales

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultCharset is the encoding of the sales sample.
	DefaultCharset = "windows-1252"

	// OrderDateLayout is the layout of ORDERDATE: US month-first, e.g. "2/24/2003 0:00".
	OrderDateLayout = "1/2/2006 15:04"
)

var requiredColumns = []string{
	"ORDERNUMBER", "QUANTITYORDERED", "PRICEEACH", "ORDERLINENUMBER", "SALES",
	"ORDERDATE", "STATUS", "QTR_ID", "MONTH_ID", "YEAR_ID", "PRODUCTLINE",
	"MSRP", "PRODUCTCODE", "CUSTOMERNAME", "PHONE", "ADDRESSLINE1",
	"ADDRESSLINE2", "CITY", "STATE", "POSTALCODE", "COUNTRY", "TERRITORY",
	"CONTACTLASTNAME", "CONTACTFIRSTNAME", "DEALSIZE",
}

// ReadOrders parses the sales CSV from r, decoding it from the given charset
// label (DefaultCharset when empty). Columns are matched by header name;
// "NA" and empty cells are kept as strings.
func ReadOrders(r io.Reader, charsetLabel string) ([]*Order, error) {
	if charsetLabel == "" {
		charsetLabel = DefaultCharset
	}

	decoded, err := charset.NewReaderLabel(charsetLabel, r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", charsetLabel, err)
	}

	cr := csv.NewReader(decoded)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("reading header: empty input")
	}

	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	var missing []string

	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var orders []*Order

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading orders: %w", err)
		}

		line, _ := cr.FieldPos(0)

		p := &rowParser{columns: columns, record: record}
		order := p.order()
		order.line = line

		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, p.err)
		}

		orders = append(orders, order)
	}

	return orders, nil
}

// rowParser keeps the first conversion error of a row.
type rowParser struct {
	columns map[string]int
	record  []string
	err     error
}

func (p *rowParser) str(column string) string {
	return strings.TrimSpace(p.record[p.columns[column]])
}

func (p *rowParser) fail(column, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: invalid value %q: %w", column, value, err)
	}
}

func (p *rowParser) uint(column string, bits int) uint64 {
	v := p.str(column)

	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		p.fail(column, v, err)
	}

	return n
}

func (p *rowParser) float(column string) float64 {
	v := p.str(column)

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(column, v, err)
	}

	return f
}

func (p *rowParser) date(column string) time.Time {
	v := p.str(column)

	t, err := time.Parse(OrderDateLayout, v)
	if err != nil {
		p.fail(column, v, err)
	}

	return t
}

func (p *rowParser) order() *Order {
	return &Order{
		OrderNumber:      uint32(p.uint("ORDERNUMBER", 32)),
		QuantityOrdered:  uint32(p.uint("QUANTITYORDERED", 32)),
		PriceEach:        p.float("PRICEEACH"),
		OrderLineNumber:  uint32(p.uint("ORDERLINENUMBER", 32)),
		Sales:            p.float("SALES"),
		OrderDate:        p.date("ORDERDATE"),
		Status:           p.str("STATUS"),
		QtrID:            uint8(p.uint("QTR_ID", 8)),
		MonthID:          uint8(p.uint("MONTH_ID", 8)),
		YearID:           uint16(p.uint("YEAR_ID", 16)),
		ProductLine:      p.str("PRODUCTLINE"),
		MSRP:             p.float("MSRP"),
		ProductCode:      p.str("PRODUCTCODE"),
		CustomerName:     p.str("CUSTOMERNAME"),
		Phone:            p.str("PHONE"),
		AddressLine1:     p.str("ADDRESSLINE1"),
		AddressLine2:     p.str("ADDRESSLINE2"),
		City:             p.str("CITY"),
		State:            p.str("STATE"),
		PostalCode:       p.str("POSTALCODE"),
		Country:          p.str("COUNTRY"),
		Territory:        p.str("TERRITORY"),
		ContactLastName:  p.str("CONTACTLASTNAME"),
		ContactFirstName: p.str("CONTACTFIRSTNAME"),
		DealSize:         p.str("DEALSIZE"),
	}
}
