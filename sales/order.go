// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package sales reads the sample sales orders and enriches them with
// coordinates and ISO country codes.
package sales

import (
	"time"

	"github.com/ordermap/ordermap/geocode"
	"github.com/ordermap/ordermap/spatial"
)

// Order is one order line of the sales sample. Field names follow the CSV
// columns; LAT, LONG, ALPHA2 and ALPHA3 are filled by the Enricher.
type Order struct {
	OrderNumber     uint32    `json:"ORDERNUMBER"`
	QuantityOrdered uint32    `json:"QUANTITYORDERED"`
	PriceEach       float64   `json:"PRICEEACH"`
	OrderLineNumber uint32    `json:"ORDERLINENUMBER"`
	Sales           float64   `json:"SALES"`
	OrderDate       time.Time `json:"ORDERDATE"`
	Status          string    `json:"STATUS"`

	QtrID   uint8  `json:"QTR_ID"`
	MonthID uint8  `json:"MONTH_ID"`
	YearID  uint16 `json:"YEAR_ID"`

	ProductLine string  `json:"PRODUCTLINE"`
	MSRP        float64 `json:"MSRP"`
	ProductCode string  `json:"PRODUCTCODE"`

	CustomerName     string `json:"CUSTOMERNAME"`
	Phone            string `json:"PHONE"`
	AddressLine1     string `json:"ADDRESSLINE1"`
	AddressLine2     string `json:"ADDRESSLINE2"`
	City             string `json:"CITY"`
	State            string `json:"STATE"`
	PostalCode       string `json:"POSTALCODE"`
	Country          string `json:"COUNTRY"`
	Territory        string `json:"TERRITORY"`
	ContactLastName  string `json:"CONTACTLASTNAME"`
	ContactFirstName string `json:"CONTACTFIRSTNAME"`
	DealSize         string `json:"DEALSIZE"`

	Lat    *float64 `json:"LAT"`
	Long   *float64 `json:"LONG"`
	Alpha2 string   `json:"ALPHA2"`
	Alpha3 string   `json:"ALPHA3"`

	// line in the source file, for error reporting
	line int
}

// Address returns the postal address of the customer.
func (o *Order) Address() geocode.Address {
	return geocode.Address{
		AddressLine1: o.AddressLine1,
		AddressLine2: o.AddressLine2,
		City:         o.City,
		State:        o.State,
		PostalCode:   o.PostalCode,
		Country:      o.Country,
	}
}

// Location returns the coordinates of the order, or nil when unknown.
func (o *Order) Location() *spatial.Point {
	if o.Lat == nil || o.Long == nil {
		return nil
	}

	return &spatial.Point{Lat: *o.Lat, Lng: *o.Long}
}

// SetLocation sets LAT and LONG from p. A nil p clears them.
func (o *Order) SetLocation(p *spatial.Point) {
	if p == nil {
		o.Lat, o.Long = nil, nil

		return
	}

	lat, lng := p.Lat, p.Lng
	o.Lat, o.Long = &lat, &lng
}

// Line returns the line of the source file the order was read from, or 0.
func (o *Order) Line() int {
	return o.line
}
