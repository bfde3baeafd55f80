package seating

import (
	"fmt"
	"math"
	"strings"

	"koikhabo/internal/domain"
)

const (
	MaxSeats    = 32
	seatsPerRow = 6
)

type tableTemplate struct {
	Name  string
	Seats int
	Shape string
}

var templates = []tableTemplate{
	{Name: "Table", Seats: 4, Shape: "square"},
	{Name: "Table", Seats: 2, Shape: "round"},
	{Name: "Table", Seats: 6, Shape: "rectangle"},
	{Name: "Booth", Seats: 4, Shape: "booth"},
	{Name: "Counter", Seats: 1, Shape: "counter"},
	{Name: "Table", Seats: 8, Shape: "large"},
}

// sequence is a seeded pseudo-random source: each draw takes the fractional
// part of sin(seed+n)*10000 for an ever increasing n.
type sequence struct {
	seed    float64
	counter int
}

func (s *sequence) intn(min, max int) int {
	s.counter++
	x := math.Sin(s.seed+float64(s.counter)) * 10000
	return int(math.Floor((x-math.Floor(x))*float64(max-min+1))) + min
}

// Generate lays out MaxSeats seats for a restaurant. The same id always
// produces the same grid.
func Generate(restaurantID int) []domain.Seat {
	if restaurantID <= 0 {
		restaurantID = 1
	}
	rnd := &sequence{seed: float64(restaurantID) * 12345}

	// An oversized table is shrunk in place, and the shrunk template stays in
	// effect for the rest of the layout.
	types := make([]tableTemplate, len(templates))
	copy(types, templates)

	grid := make([]domain.Seat, 0, MaxSeats)
	tableNumber := 1
	total := 0

	for total < MaxSeats {
		idx := rnd.intn(0, len(types)-1)
		remaining := MaxSeats - total

		if types[idx].Seats > remaining {
			fit := types[1]
			for _, t := range types {
				if t.Seats <= remaining {
					fit = t
					break
				}
			}
			types[idx] = fit
		}
		table := types[idx]

		for seatNum := 1; seatNum <= table.Seats; seatNum++ {
			private := table.Shape == "booth" || (table.Seats >= 6 && rnd.intn(1, 3) == 1)
			womenOnly := tableNumber <= 2 && rnd.intn(1, 4) == 1
			occupied := rnd.intn(1, 10) <= 2
			booked := rnd.intn(1, 10) <= 1

			row, col := total/seatsPerRow, total%seatsPerRow
			x := col*120 + rnd.intn(10, 30)
			y := row*100 + rnd.intn(10, 30)

			grid = append(grid, domain.Seat{
				ID:              fmt.Sprintf("%s_%d_seat_%d", strings.ToLower(table.Name), tableNumber, seatNum),
				Code:            fmt.Sprintf("%c%d-%d", table.Name[0], tableNumber, seatNum),
				TableNumber:     tableNumber,
				TableType:       table.Name,
				Shape:           table.Shape,
				SeatPosition:    seatNum,
				TotalTableSeats: table.Seats,
				IsOccupied:      occupied,
				IsBooked:        booked,
				IsWomenOnly:     womenOnly,
				IsPrivateRoom:   private,
				Position:        domain.GridPosition{Row: row, Col: col, X: x, Y: y},
			})

			total++
			if total >= MaxSeats {
				break
			}
		}
		tableNumber++
	}

	return grid
}

// Available returns the seats that are neither occupied nor booked.
func Available(grid []domain.Seat) []domain.Seat {
	out := make([]domain.Seat, 0, len(grid))
	for _, seat := range grid {
		if !seat.IsOccupied && !seat.IsBooked {
			out = append(out, seat)
		}
	}
	return out
}
