package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"school-collab/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	onlineKey      = "collab:online"
	userKeyPrefix  = "collab:user:"
	stateKeyPrefix = "collab:presence:"
)

func userKey(userID string) string     { return userKeyPrefix + userID }
func presenceKey(userID string) string { return stateKeyPrefix + userID }

// PresenceMirror publishes the relay's roster to Redis so other services
// can see who is online. Entries expire unless refreshed within ttl.
type PresenceMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresenceMirror(rdb *redis.Client, ttl time.Duration) *PresenceMirror {
	return &PresenceMirror{rdb: rdb, ttl: ttl}
}

func (p *PresenceMirror) Online(ctx context.Context, user domain.CollaborationUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, onlineKey, user.ID)
	pipe.Set(ctx, userKey(user.ID), data, p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Touch stores the latest presence and extends the user's lifetime
func (p *PresenceMirror) Touch(ctx context.Context, info domain.PresenceInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, presenceKey(info.UserID), data, p.ttl)
	pipe.Expire(ctx, userKey(info.UserID), p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *PresenceMirror) Offline(ctx context.Context, userID string) error {
	pipe := p.rdb.TxPipeline()
	pipe.SRem(ctx, onlineKey, userID)
	pipe.Del(ctx, userKey(userID), presenceKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the users whose entries have not expired, ordered by id.
// Expired members are pruned from the online set.
func (p *PresenceMirror) List(ctx context.Context) ([]domain.CollaborationUser, error) {
	ids, err := p.rdb.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.CollaborationUser{}, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	pipe := p.rdb.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, userKey(id))
	}
	// redis.Nil for expired keys is handled per command
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	users := make([]domain.CollaborationUser, 0, len(ids))
	stale := []any{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, err
		}
		var user domain.CollaborationUser
		if err := json.Unmarshal(data, &user); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		users = append(users, user)
	}
	if 0 < len(stale) {
		p.rdb.SRem(ctx, onlineKey, stale...)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// Presence returns the last mirrored presence of a user
func (p *PresenceMirror) Presence(ctx context.Context, userID string) (domain.PresenceInfo, bool, error) {
	data, err := p.rdb.Get(ctx, presenceKey(userID)).Bytes()
	if err == redis.Nil {
		return domain.PresenceInfo{}, false, nil
	}
	if err != nil {
		return domain.PresenceInfo{}, false, err
	}
	var info domain.PresenceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.PresenceInfo{}, false, err
	}
	return info, true, nil
}
