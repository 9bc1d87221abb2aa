package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// ErrPresenceNotFound is returned when a participant has no presence row.
var ErrPresenceNotFound = errors.New("presence not found")

const (
	fieldChildName  = "childName"
	fieldSurah      = "surah"
	fieldAyah       = "ayah"
	fieldLastSeenAt = "lastSeenAt"
)

// PresenceRepository keeps one Redis hash per participant plus a member set per
// batch. Every write is a field-level HSET on a single key, so concurrent
// heartbeats and position writes never overwrite each other's fields.
type PresenceRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewPresenceRepository constructs the Redis presence store.
func NewPresenceRepository(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *PresenceRepository {
	if prefix == "" {
		prefix = "live"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceRepository{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *PresenceRepository) presenceKey(batchID, childID string) string {
	return fmt.Sprintf("%s:presence:%s:%s", r.prefix, batchID, childID)
}

func (r *PresenceRepository) membersKey(batchID string) string {
	return fmt.Sprintf("%s:batch:%s:members", r.prefix, batchID)
}

// Touch records that the participant was seen at the given time.
func (r *PresenceRepository) Touch(ctx context.Context, batchID, childID, childName string, at time.Time) error {
	values := []interface{}{fieldLastSeenAt, at.UnixMilli()}
	if childName != "" {
		values = append(values, fieldChildName, childName)
	}
	if err := r.upsert(ctx, batchID, childID, values); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

// SetPosition records the participant's position and refreshes lastSeenAt.
func (r *PresenceRepository) SetPosition(ctx context.Context, batchID, childID string, pos models.Position, at time.Time) error {
	values := []interface{}{
		fieldSurah, pos.Surah,
		fieldAyah, pos.Ayah,
		fieldLastSeenAt, at.UnixMilli(),
	}
	if err := r.upsert(ctx, batchID, childID, values); err != nil {
		return fmt.Errorf("set presence position: %w", err)
	}
	return nil
}

func (r *PresenceRepository) upsert(ctx context.Context, batchID, childID string, values []interface{}) error {
	key := r.presenceKey(batchID, childID)
	members := r.membersKey(batchID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, members, childID)
		pipe.Expire(ctx, members, r.ttl)
		return nil
	})
	return err
}

// Get returns a participant's presence row.
func (r *PresenceRepository) Get(ctx context.Context, batchID, childID string) (*models.ParticipantPresence, error) {
	fields, err := r.client.HGetAll(ctx, r.presenceKey(batchID, childID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrPresenceNotFound
	}
	presence := decodePresence(batchID, childID, fields)
	return &presence, nil
}

// Roster returns every known participant of the batch ordered by child id.
// Members whose hash expired are pruned from the set.
func (r *PresenceRepository) Roster(ctx context.Context, batchID string) ([]models.ParticipantPresence, error) {
	membersKey := r.membersKey(batchID)
	childIDs, err := r.client.SMembers(ctx, membersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	if len(childIDs) == 0 {
		return []models.ParticipantPresence{}, nil
	}
	sort.Strings(childIDs)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(childIDs))
	for i, childID := range childIDs {
		cmds[i] = pipe.HGetAll(ctx, r.presenceKey(batchID, childID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load batch roster: %w", err)
	}

	roster := make([]models.ParticipantPresence, 0, len(childIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			expired = append(expired, childIDs[i])
			continue
		}
		roster = append(roster, decodePresence(batchID, childIDs[i], fields))
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, membersKey, expired...).Err(); err != nil {
			r.logger.Warn("failed to prune expired presence members", zap.String("batch_id", batchID), zap.Error(err))
		}
	}
	return roster, nil
}

// Remove deletes the participant from the batch.
func (r *PresenceRepository) Remove(ctx context.Context, batchID, childID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.presenceKey(batchID, childID))
		pipe.SRem(ctx, r.membersKey(batchID), childID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

func decodePresence(batchID, childID string, fields map[string]string) models.ParticipantPresence {
	presence := models.ParticipantPresence{
		BatchID:   batchID,
		ChildID:   childID,
		ChildName: fields[fieldChildName],
	}
	if raw, ok := fields[fieldLastSeenAt]; ok {
		if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
			presence.LastSeenAt = time.UnixMilli(millis).UTC()
		}
	}
	surah, surahOK := parseOptionalInt(fields[fieldSurah])
	ayah, ayahOK := parseOptionalInt(fields[fieldAyah])
	if surahOK && ayahOK {
		presence.CurrentSurah = &surah
		presence.CurrentAyah = &ayah
	}
	return presence
}

func parseOptionalInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
