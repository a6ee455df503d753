package services

import (
	"errors"

	"kantin/internal/domain"
)

var ErrProductUnavailable = errors.New("product is inactive or out of stock")

// CartLine is a product snapshot with a quantity in 1..Product.Stock.
type CartLine struct {
	Product  domain.Product
	Quantity int
}

func (l CartLine) Subtotal() int64 { return l.Product.Price * int64(l.Quantity) }

// StockSignal reports that a requested quantity was clamped to the stock on
// hand. Clamping is not an error.
type StockSignal struct {
	Exceeded  bool `json:"exceeded"`
	Available int  `json:"available"`
}

// Cart keeps lines in the order they were first added.
type Cart struct {
	lines []CartLine
}

func (c *Cart) find(productID string) int {
	for i, l := range c.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// Add puts one more unit of p in the cart. The stored snapshot is refreshed
// from p, so price and stock follow the catalog until checkout.
func (c *Cart) Add(p domain.Product) (StockSignal, error) {
	if !p.Purchasable() {
		return StockSignal{}, ErrProductUnavailable
	}
	i := c.find(p.ID)
	if i < 0 {
		c.lines = append(c.lines, CartLine{Product: p, Quantity: 1})
		return StockSignal{Available: p.Stock}, nil
	}
	c.lines[i].Product = p
	return c.set(i, c.lines[i].Quantity+1), nil
}

// SetQuantity clamps qty to [0, stock]; 0 removes the line. Unknown products
// are ignored.
func (c *Cart) SetQuantity(productID string, qty int) StockSignal {
	i := c.find(productID)
	if i < 0 {
		return StockSignal{}
	}
	return c.set(i, qty)
}

func (c *Cart) Adjust(productID string, delta int) StockSignal {
	i := c.find(productID)
	if i < 0 {
		return StockSignal{}
	}
	return c.set(i, c.lines[i].Quantity+delta)
}

func (c *Cart) set(i, qty int) StockSignal {
	stock := c.lines[i].Product.Stock
	sig := StockSignal{Available: stock}
	if qty > stock {
		qty = stock
		sig.Exceeded = true
	}
	if qty <= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return sig
	}
	c.lines[i].Quantity = qty
	return sig
}

func (c *Cart) Remove(productID string) {
	if i := c.find(productID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Total() int64 {
	var t int64
	for _, l := range c.lines {
		t += l.Subtotal()
	}
	return t
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Empty() bool { return len(c.lines) == 0 }

func (c *Cart) Clear() { c.lines = nil }

// SellerGroup is the share of a cart belonging to one seller.
type SellerGroup struct {
	SellerID string
	Lines    []CartLine
	Total    int64
}

// BySeller splits the cart per seller, in order of each seller's first line.
func (c *Cart) BySeller() []SellerGroup {
	var out []SellerGroup
	idx := map[string]int{}
	for _, l := range c.lines {
		i, ok := idx[l.Product.SellerID]
		if !ok {
			i = len(out)
			idx[l.Product.SellerID] = i
			out = append(out, SellerGroup{SellerID: l.Product.SellerID})
		}
		out[i].Lines = append(out[i].Lines, l)
		out[i].Total += l.Subtotal()
	}
	return out
}
