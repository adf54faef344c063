package skins

import (
	"context"

	"github.com/google/uuid"
)

// OwnerListChecker decides whether a skin may be used based on its owner.
// When the whitelist isn't empty only the listed owners are allowed, otherwise everyone except the blacklisted ones
type OwnerListChecker struct {
	whitelist map[uuid.UUID]struct{}
	blacklist map[uuid.UUID]struct{}
}

func NewOwnerListChecker(whitelist []uuid.UUID, blacklist []uuid.UUID) *OwnerListChecker {
	return &OwnerListChecker{
		whitelist: toSet(whitelist),
		blacklist: toSet(blacklist),
	}
}

func (c *OwnerListChecker) CheckPermission(
	ctx context.Context,
	invoker uuid.UUID,
	receiver uuid.UUID,
	owner uuid.UUID,
	skinPerm bool,
) bool {
	if !skinPerm || invoker == owner {
		return true
	}

	if len(c.whitelist) > 0 {
		_, ok := c.whitelist[owner]
		return ok
	}

	_, denied := c.blacklist[owner]

	return !denied
}

func toSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	result := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		result[id] = struct{}{}
	}

	return result
}
