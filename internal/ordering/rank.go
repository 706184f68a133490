package ordering

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry описывает участие одного пользователя в очереди.
type Entry struct {
	QueueID     uuid.UUID `json:"queue_id"`
	UserID      uuid.UUID `json:"user_id"`
	Rank        int64     `json:"rank"`
	HasPriority bool      `json:"has_priority"`
	IsHeld      bool      `json:"is_held"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ComputeJoinRank возвращает ранг нового участника: на единицу больше
// максимального среди entries или 0 для пустой очереди.
func ComputeJoinRank(entries []Entry) int64 {
	if len(entries) == 0 {
		return 0
	}
	highest := entries[0].Rank
	for _, e := range entries[1:] {
		if e.Rank > highest {
			highest = e.Rank
		}
	}
	return JoinRankAfter(&highest)
}

// JoinRankAfter делает то же по одному максимуму, который отдаёт хранилище
// (nil, если записей нет).
func JoinRankAfter(highest *int64) int64 {
	if highest == nil {
		return 0
	}
	return *highest + 1
}

// OrderEntries возвращает новый срез в порядке обслуживания: сначала
// удержанные, затем по возрастанию ранга. При равенстве решают время
// вступления и ключ (очередь, пользователь), так что порядок полный.
//
// has_priority в сортировке не участвует.
func OrderEntries(entries []Entry) []Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, compareEntries)
	return out
}

func compareEntries(a, b Entry) int {
	switch {
	case a.IsHeld && !b.IsHeld:
		return -1
	case !a.IsHeld && b.IsHeld:
		return 1
	}
	switch {
	case a.Rank < b.Rank:
		return -1
	case a.Rank > b.Rank:
		return 1
	}
	if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
		return c
	}
	if c := strings.Compare(a.QueueID.String(), b.QueueID.String()); c != 0 {
		return c
	}
	return strings.Compare(a.UserID.String(), b.UserID.String())
}
