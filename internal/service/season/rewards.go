package season

// Rewards is the coin payout per final rank bucket.
type Rewards struct {
	First  int64
	Second int64
	Third  int64
	Top10  int64
	Top100 int64
}

// DefaultRewards returns the standard payout table.
func DefaultRewards() Rewards {
	return Rewards{First: 1000, Second: 750, Third: 500, Top10: 250, Top100: 100}
}

// ForPosition returns the coins paid for a 1-based leaderboard position.
func (r Rewards) ForPosition(position int) int64 {
	switch {
	case position == 1:
		return r.First
	case position == 2:
		return r.Second
	case position == 3:
		return r.Third
	case position >= 4 && position <= 10:
		return r.Top10
	case position >= 11 && position <= 100:
		return r.Top100
	default:
		return 0
	}
}
