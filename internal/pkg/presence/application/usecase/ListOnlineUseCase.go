package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	cacheport "go-lounge/internal/infrastructure/cache/port"
)

// ListOnlineUseCase reads the advisory lounge-wide online view. Members of
// the online set whose last-seen key has expired are pruned as a side
// effect, so the set converges without a dedicated cleanup job.
type ListOnlineUseCase struct {
	Cache cacheport.Cache
}

func NewListOnlineUseCase(cache cacheport.Cache) *ListOnlineUseCase {
	return &ListOnlineUseCase{Cache: cache}
}

// Execute returns the user keys considered online at the lounge level.
func (uc *ListOnlineUseCase) Execute(ctx context.Context) ([]string, error) {
	members, err := uc.Cache.SMembers(ctx, onlineSetKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	online := make([]string, 0, len(members))
	var stale []string
	for _, key := range members {
		alive, err := uc.Cache.Exists(ctx, seenKeyPrefix+key)
		if err != nil {
			// Can't tell; report the member rather than drop it.
			online = append(online, key)
			continue
		}
		if alive {
			online = append(online, key)
		} else {
			stale = append(stale, key)
		}
	}

	if len(stale) > 0 {
		if err := uc.Cache.SRem(ctx, onlineSetKey, stale...); err != nil {
			slog.Warn("online set prune failed", "stale", len(stale), "error", err)
		}
	}

	sort.Strings(online)
	return online, nil
}
