package cart

import (
	"sort"
	"sync"

	"koikhabo/internal/domain"

	"github.com/shopspring/decimal"
)

// Cart is the per-session shopping cart. Entries are keyed by (ID, RestaurantID)
// and never hold a quantity below 1.
type Cart struct {
	mu    sync.RWMutex
	items []domain.CartItem
}

func New() *Cart {
	return &Cart{items: []domain.CartItem{}}
}

func (c *Cart) indexOf(id, restaurantID int) int {
	for i := range c.items {
		if c.items[i].ID == id && c.items[i].RestaurantID == restaurantID {
			return i
		}
	}
	return -1
}

// Add merges item into the cart. A quantity of zero or less counts as one.
func (c *Cart) Add(item domain.CartItem) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(item.ID, item.RestaurantID); i >= 0 {
		c.items[i].Quantity += item.Quantity
		return
	}
	c.items = append(c.items, item)
}

func (c *Cart) Remove(id, restaurantID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id, restaurantID)
}

func (c *Cart) removeLocked(id, restaurantID int) {
	if i := c.indexOf(id, restaurantID); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
}

// SetQuantity overwrites an entry's quantity; qty <= 0 removes it.
func (c *Cart) SetQuantity(id, restaurantID, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if qty <= 0 {
		c.removeLocked(id, restaurantID)
		return
	}
	if i := c.indexOf(id, restaurantID); i >= 0 {
		c.items[i].Quantity = qty
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = []domain.CartItem{}
}

func (c *Cart) Total() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) Items() []domain.CartItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items) == 0
}

// CanReserveSeats reports whether any entry allows a table reservation.
func (c *Cart) CanReserveSeats() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, item := range c.items {
		if item.CanReserveSeats {
			return true
		}
	}
	return false
}

// Restaurants returns the distinct restaurant ids in the cart, ascending.
func (c *Cart) Restaurants() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[int]bool)
	ids := []int{}
	for _, item := range c.items {
		if !seen[item.RestaurantID] {
			seen[item.RestaurantID] = true
			ids = append(ids, item.RestaurantID)
		}
	}
	sort.Ints(ids)
	return ids
}

// GroupByRestaurant splits a snapshot of the cart into one slice per restaurant.
func (c *Cart) GroupByRestaurant() map[int][]domain.CartItem {
	groups := make(map[int][]domain.CartItem)
	for _, item := range c.Items() {
		groups[item.RestaurantID] = append(groups[item.RestaurantID], item)
	}
	return groups
}
