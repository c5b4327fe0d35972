package lob

import (
	"github.com/tidwall/btree"
)

// Limits is one side of the book: a stable arena of levels, a price to
// index map for the active levels, a map of retired (drained) levels that
// may be revived, and the best level, tracked eagerly on add and
// invalidated on drain.
//
// An ordered price index shadows the active map so that recomputing the
// best after an invalidation does not scan the whole arena. It is keyed
// best-price-first, so the best level is at the front for both sides.
type Limits struct {
	side Side

	levels    levelArena
	levelMap  map[Price]LevelIndex
	removed   map[Price]LevelIndex
	activeSet *btree.BTreeG[*Level]

	best LevelIndex
}

func newLimits(side Side) Limits {
	var less func(a, b *Level) bool
	switch side {
	case Buy:
		// Sorted greatest first.
		less = func(a, b *Level) bool { return b.price.Less(a.price) }
	case Sell:
		// Sorted least first.
		less = func(a, b *Level) bool { return a.price.Less(b.price) }
	}
	return Limits{
		side:      side,
		levelMap:  make(map[Price]LevelIndex),
		removed:   make(map[Price]LevelIndex),
		activeSet: btree.NewBTreeG(less),
		best:      noLevel,
	}
}

// BestPrice returns the price of the side's best level, if tracked.
func (l *Limits) BestPrice() (Price, bool) {
	index, ok := l.Best()
	if !ok {
		return 0, false
	}
	return l.levels.get(index).price, true
}

// Best returns the index of the side's best level. An invalidated pointer
// is recomputed here, on first need, rather than where it was cleared.
func (l *Limits) Best() (LevelIndex, bool) {
	if l.best == noLevel {
		l.recomputeBest()
	}
	if l.best == noLevel {
		return noLevel, false
	}
	return l.best, true
}

// addOrder rests the order on its price level. A retired level at the
// price is revived at its old index and the best pointer is cleared, to be
// recomputed on next need; a new price allocates a fresh level and may
// take over as best.
func (l *Limits) addOrder(order *LimitOrder) {
	price := order.Price

	if index, ok := l.removed[price]; ok {
		delete(l.removed, price)
		l.levelMap[price] = index
		l.activeSet.Set(l.levels.get(index))
		// The revived price may outrank the current best.
		l.best = noLevel
	}

	if index, ok := l.levelMap[price]; ok {
		l.levels.get(index).addOrder(order)
		// Adding to an existing level cannot change which price is best.
		return
	}

	level := newLevel(price)
	level.addOrder(order)
	index := l.levels.push(level)
	l.levelMap[price] = index
	l.activeSet.Set(level)

	if l.best == noLevel {
		l.best = index
		return
	}
	bestPrice := l.levels.get(l.best).price
	switch l.side {
	case Buy:
		if bestPrice.Less(price) {
			l.best = index
		}
	case Sell:
		if price.Less(bestPrice) {
			l.best = index
		}
	}
}

// cancelOrder settles the level volume for an order leaving the book. The
// order id is left in the level queue; matching walks prune it later. If
// the level drains it is retired, and a best pointing at it is cleared to
// be recomputed on next need.
func (l *Limits) cancelOrder(order *LimitOrder) {
	index, ok := l.levelMap[order.Price]
	if !ok {
		return
	}
	level := l.levels.get(index)
	level.reduceVolume(order.Remaining())
	if level.totalVolume.IsZero() {
		l.retire(level)
	}
}

// retire moves a drained level out of the active maps. Its arena slot and
// index stay put for revival.
func (l *Limits) retire(level *Level) {
	delete(l.levelMap, level.price)
	l.removed[level.price] = level.index
	l.activeSet.Delete(level)
	if l.best == level.index {
		l.best = noLevel
	}
}

// recomputeBest re-establishes the best pointer as the extremum over the
// active levels holding volume. Amortised: it only runs after the previous
// best was invalidated, and the ordered index makes it a front scan rather
// than an arena sweep.
func (l *Limits) recomputeBest() {
	l.best = noLevel
	l.activeSet.Scan(func(level *Level) bool {
		if level.totalVolume.IsZero() {
			return true
		}
		l.best = level.index
		return false
	})
}

// ensureBest recomputes the best pointer unless it already refers to a
// level holding volume.
func (l *Limits) ensureBest() {
	if l.best != noLevel && !l.levels.get(l.best).totalVolume.IsZero() {
		return
	}
	l.recomputeBest()
}

// volumeAt reports the resting volume at a price, active levels only.
func (l *Limits) volumeAt(price Price) (Volume, bool) {
	index, ok := l.levelMap[price]
	if !ok {
		return 0, false
	}
	return l.levels.get(index).totalVolume, true
}
