package orders

// Add merges into an existing (product, size) line or appends a new one
// priced from p at this moment.
func (c *Cart) Add(p Product, qty int, size Size) error {
	if size == "" {
		size = DefaultSize
	}
	if !size.Valid() {
		return Validationf("invalid size %q", size)
	}
	if qty < 1 {
		return Validationf("quantity must be at least 1")
	}
	if i := c.find(p.ID, size); i >= 0 {
		c.Items[i].Quantity += qty
		return nil
	}
	c.Items = append(c.Items, CartItem{
		ProductID:     p.ID,
		Category:      p.Category,
		Size:          size,
		Quantity:      qty,
		PriceSnapshot: p.Price,
	})
	return nil
}

func (c *Cart) Remove(productID string, size Size) error {
	if size == "" {
		size = DefaultSize
	}
	i := c.find(productID, size)
	if i < 0 {
		return NotFoundf("item %s/%s not in cart", productID, size)
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

func (c *Cart) SetQuantity(productID string, size Size, qty int) error {
	if size == "" {
		size = DefaultSize
	}
	if qty < 1 {
		return Validationf("quantity must be at least 1")
	}
	i := c.find(productID, size)
	if i < 0 {
		return NotFoundf("item %s/%s not in cart", productID, size)
	}
	c.Items[i].Quantity = qty
	return nil
}

func (c *Cart) Clear() { c.Items = []CartItem{} }

func (c Cart) Empty() bool { return len(c.Items) == 0 }

func (c Cart) StockLines() []ItemQty {
	items := make([]OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return MergeLines(items)
}
