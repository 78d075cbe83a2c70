// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package sales

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON writes orders as an indented JSON array. Unknown coordinates
// are written as null.
func WriteJSON(w io.Writer, orders []*Order) error {
	if orders == nil {
		orders = []*Order{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(orders); err != nil {
		return fmt.Errorf("writing orders: %w", err)
	}

	return nil
}
