// Package ordering 维护稠密排序序号（1..N）的纯计算逻辑
//
// 调用方负责在事务内加载同一分组的全部条目，调用本包得到新序号，
// 再只写回序号发生变化的条目。
package ordering

import "sort"

// Item 参与排序的条目
type Item struct {
	ID    string
	Order int
}

// Change 一次重排后需要写回的序号
type Change struct {
	ID       string
	OldOrder int
	NewOrder int
}

// NextOrder 新条目的序号：现有最大值 + 1，空列表为 1
func NextOrder(orders []int) int {
	max := 0
	for _, o := range orders {
		if o > max {
			max = o
		}
	}
	return max + 1
}

// Delete 移除 id 并把序号大于它的条目依次前移一位
// id 不存在时返回 (nil, false)
func Delete(items []Item, id string) ([]Change, bool) {
	removed, ok := find(items, id)
	if !ok {
		return nil, false
	}

	var changes []Change
	for _, it := range items {
		if it.ID != id && it.Order > removed.Order {
			changes = append(changes, Change{ID: it.ID, OldOrder: it.Order, NewOrder: it.Order - 1})
		}
	}
	return changes, true
}

// Move 将 id 移动 direction 位（负数向前，正数向后）
//
// 目标位置超出 [min, max] 时不做任何修改。被跨过的条目向空出的位置顺移一位，
// 因此 |direction| > 1 等价于连续多次单步移动。
// id 不存在时返回 (nil, false)。
func Move(items []Item, id string, direction int) ([]Change, bool) {
	moved, ok := find(items, id)
	if !ok {
		return nil, false
	}
	if direction == 0 || len(items) == 0 {
		return nil, true
	}

	min, max := bounds(items)
	target := moved.Order + direction
	if target < min || target > max {
		return nil, true
	}

	changes := []Change{{ID: moved.ID, OldOrder: moved.Order, NewOrder: target}}
	for _, it := range items {
		if it.ID == id {
			continue
		}
		switch {
		case direction > 0 && it.Order > moved.Order && it.Order <= target:
			changes = append(changes, Change{ID: it.ID, OldOrder: it.Order, NewOrder: it.Order - 1})
		case direction < 0 && it.Order < moved.Order && it.Order >= target:
			changes = append(changes, Change{ID: it.ID, OldOrder: it.Order, NewOrder: it.Order + 1})
		}
	}
	return changes, true
}

// Apply 将变更应用到条目副本并按序号升序返回
func Apply(items []Item, changes []Change) []Item {
	next := make(map[string]int, len(changes))
	for _, c := range changes {
		next[c.ID] = c.NewOrder
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		if o, ok := next[it.ID]; ok {
			it.Order = o
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Dense 序号是否恰好为 1..N 的排列
func Dense(items []Item) bool {
	seen := make([]bool, len(items)+1)
	for _, it := range items {
		if it.Order < 1 || it.Order > len(items) || seen[it.Order] {
			return false
		}
		seen[it.Order] = true
	}
	return true
}

func find(items []Item, id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func bounds(items []Item) (int, int) {
	min, max := items[0].Order, items[0].Order
	for _, it := range items[1:] {
		if it.Order < min {
			min = it.Order
		}
		if it.Order > max {
			max = it.Order
		}
	}
	return min, max
}
