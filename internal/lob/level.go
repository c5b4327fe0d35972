package lob

// noLevel marks an unset level index.
const noLevel = LevelIndex(-1)

// LevelIndex is a stable handle into a side's level arena. Once a level is
// pushed its index never changes for the lifetime of the book.
type LevelIndex int

// Level is a single price point: the total resting volume and the ids of
// the orders resting there, in arrival order. Cancelled ids linger in the
// queue until a matching walk prunes them (lazy cancellation), so
// totalVolume is the authoritative quantity, not the queue length.
type Level struct {
	index       LevelIndex
	price       Price
	totalVolume Volume
	orders      []Oid
}

func newLevel(price Price) *Level {
	return &Level{
		index: noLevel,
		price: price,
	}
}

func (l *Level) Price() Price {
	return l.price
}

func (l *Level) TotalVolume() Volume {
	return l.totalVolume
}

// addOrder queues the order id and adds its remaining volume.
func (l *Level) addOrder(order *LimitOrder) {
	l.totalVolume = l.totalVolume.Add(order.Remaining())
	l.orders = append(l.orders, order.ID)
}

func (l *Level) reduceVolume(volume Volume) {
	l.totalVolume = l.totalVolume.Sub(volume)
}

// front peeks the oldest queued id.
func (l *Level) front() (Oid, bool) {
	if len(l.orders) == 0 {
		return 0, false
	}
	return l.orders[0], true
}

func (l *Level) popFront() {
	if len(l.orders) == 0 {
		corrupted("pop from empty queue at level %s", l.price)
	}
	l.orders = l.orders[1:]
}

// levelArena is grow-only storage for levels. Indices handed out by push
// stay valid forever; drained levels are retired by the owning side, never
// removed, so they can be revived when the price trades again.
type levelArena struct {
	levels []*Level
}

func (a *levelArena) push(level *Level) LevelIndex {
	index := LevelIndex(len(a.levels))
	level.index = index
	a.levels = append(a.levels, level)
	return index
}

func (a *levelArena) get(index LevelIndex) *Level {
	if index < 0 || int(index) >= len(a.levels) {
		return nil
	}
	return a.levels[index]
}

func (a *levelArena) len() int {
	return len(a.levels)
}
