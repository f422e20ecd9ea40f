package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// commands is the subset of redis operations the registry uses.
type commands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Registry tracks which participants are currently inside a telemedicine
// room. Membership is advisory: entries expire on their own, and a redis
// outage degrades to empty peer lists rather than failing the caller.
type Registry struct {
	client commands
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRegistry(client commands, ttl time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{client: client, ttl: ttl, logger: logger}
}

func roomKey(appointmentID int64) string {
	return fmt.Sprintf("telemed:presence:%d", appointmentID)
}

// Join records a participant in the room and refreshes its expiry.
func (r *Registry) Join(ctx context.Context, appointmentID, userID int64) error {
	key := roomKey(appointmentID)
	if err := r.client.SAdd(ctx, key, userID).Err(); err != nil {
		r.logger.Warn().Err(err).Int64("appointment_id", appointmentID).Msg("presence join failed")
		return err
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Int64("appointment_id", appointmentID).Msg("presence expire failed")
	}
	return nil
}

// Leave removes a participant from the room.
func (r *Registry) Leave(ctx context.Context, appointmentID, userID int64) error {
	if err := r.client.SRem(ctx, roomKey(appointmentID), userID).Err(); err != nil {
		r.logger.Warn().Err(err).Int64("appointment_id", appointmentID).Msg("presence leave failed")
		return err
	}
	return nil
}

// Peers lists the participants currently in the room. On redis failure it
// returns an empty list.
func (r *Registry) Peers(ctx context.Context, appointmentID int64) ([]int64, error) {
	members, err := r.client.SMembers(ctx, roomKey(appointmentID)).Result()
	if err != nil {
		r.logger.Warn().Err(err).Int64("appointment_id", appointmentID).Msg("presence peers failed")
		return nil, nil
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
