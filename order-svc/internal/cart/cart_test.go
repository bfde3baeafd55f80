package cart

import (
	"math/rand"
	"sync"
	"testing"

	"koikhabo/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id, restaurantID int, price int64, qty int) domain.CartItem {
	return domain.CartItem{ID: id, RestaurantID: restaurantID, Name: "dish", Price: decimal.NewFromInt(price), Quantity: qty}
}

func TestCart_Add(t *testing.T) {
	tests := []struct {
		name      string
		adds      []domain.CartItem
		wantLen   int
		wantCount int
	}{
		{name: "new entry defaults quantity to one", adds: []domain.CartItem{item(1, 1, 100, 0)}, wantLen: 1, wantCount: 1},
		{name: "same id and restaurant merges", adds: []domain.CartItem{item(1, 1, 100, 1), item(1, 1, 100, 2)}, wantLen: 1, wantCount: 3},
		{name: "same id other restaurant stays separate", adds: []domain.CartItem{item(1, 1, 100, 1), item(1, 2, 100, 1)}, wantLen: 2, wantCount: 2},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			c := New()
			for _, it := range testCase.adds {
				c.Add(it)
			}
			assert.Len(t, c.Items(), testCase.wantLen)
			assert.Equal(t, testCase.wantCount, c.ItemCount())
		})
	}
}

func TestCart_SetQuantityAndRemove(t *testing.T) {
	c := New()
	c.Add(item(1, 1, 225, 1))
	c.Add(item(2, 1, 50, 1))

	c.SetQuantity(1, 1, 4)
	assert.Equal(t, 5, c.ItemCount())

	c.SetQuantity(2, 1, 0)
	require.Len(t, c.Items(), 1)
	assert.Equal(t, 1, c.Items()[0].ID)

	c.SetQuantity(99, 1, 3)
	assert.Equal(t, 4, c.ItemCount())

	c.Remove(99, 1)
	c.Remove(1, 1)
	assert.True(t, c.Empty())
}

func TestCart_Total(t *testing.T) {
	c := New()
	c.Add(domain.CartItem{ID: 1, RestaurantID: 1, Price: decimal.RequireFromString("225.50"), Quantity: 2})
	c.Add(domain.CartItem{ID: 2, RestaurantID: 2, Price: decimal.RequireFromString("0.333"), Quantity: 3})

	assert.Equal(t, "451.999", c.Total().String())

	c.Clear()
	assert.True(t, c.Total().IsZero())
	assert.Equal(t, 0, c.ItemCount())
}

func TestCart_ItemsIsSnapshot(t *testing.T) {
	c := New()
	c.Add(item(1, 1, 100, 1))

	items := c.Items()
	items[0].Quantity = 50

	assert.Equal(t, 1, c.ItemCount())
}

func TestCart_ReservationAndGrouping(t *testing.T) {
	c := New()
	c.Add(item(1, 7, 100, 1))
	c.Add(item(2, 3, 100, 1))
	c.Add(item(3, 7, 100, 2))
	assert.False(t, c.CanReserveSeats())

	c.Add(domain.CartItem{ID: 9, RestaurantID: 3, Price: decimal.NewFromInt(10), CanReserveSeats: true})
	assert.True(t, c.CanReserveSeats())

	assert.Equal(t, []int{3, 7}, c.Restaurants())

	groups := c.GroupByRestaurant()
	assert.Len(t, groups[7], 2)
	assert.Len(t, groups[3], 2)
}

func TestCart_RandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := New()

	for i := 0; i < 500; i++ {
		id, restaurantID := rng.Intn(5), rng.Intn(3)
		switch rng.Intn(4) {
		case 0:
			c.Add(item(id, restaurantID, int64(rng.Intn(300)), rng.Intn(4)))
		case 1:
			c.Remove(id, restaurantID)
		case 2:
			c.SetQuantity(id, restaurantID, rng.Intn(6)-2)
		case 3:
			if rng.Intn(20) == 0 {
				c.Clear()
			}
		}

		expected := decimal.Zero
		for _, it := range c.Items() {
			require.Greater(t, it.Quantity, 0)
			expected = expected.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		require.True(t, expected.Equal(c.Total()))
	}
}

func TestCart_ConcurrentAdds(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(item(1, 1, 10, 1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.ItemCount())
	assert.True(t, decimal.NewFromInt(500).Equal(c.Total()))
}
