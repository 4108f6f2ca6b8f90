package redisdoc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/MrEthical07/greenauth/docstore"
	"github.com/redis/go-redis/v9"
)

const (
	updateApplied   int64 = 1
	updateRejected  int64 = 0
	updateNotFound  int64 = -1
	updateDuplicate int64 = -2
	updateStale     int64 = -3
)

// KEYS: doc, ids, unique index keys..., lookup index keys...
// ARGV: id, unique key count, field/value pairs...
const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local unique_count = tonumber(ARGV[2])
for i = 3, 2 + unique_count do
  if redis.call("EXISTS", KEYS[i]) == 1 then
    return 0
  end
end
for i = 3, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
for i = 3, 2 + unique_count do
  redis.call("SET", KEYS[i], ARGV[1])
end
for i = 3 + unique_count, #KEYS do
  redis.call("SADD", KEYS[i], ARGV[1])
end
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`

var insertLua = redis.NewScript(insertScript)

// KEYS: doc, index keys referenced by position from ARGV...
// ARGV: id, n, n*(field, mode, value), k, k*(field, kind, expected old, old key pos, new key pos),
// patch pairs...
//
// Index entries carry the value the caller read before the call; if the
// document moved on meanwhile the script returns -3 and the caller retries
// with fresh keys. Position 0 means no key.
const updateIfScript = `
local doc_key = KEYS[1]
local id = ARGV[1]

if redis.call("EXISTS", doc_key) == 0 then
  return -1
end

local idx = 2
local cond_count = tonumber(ARGV[idx])
idx = idx + 1
for _ = 1, cond_count do
  local field = ARGV[idx]
  local mode = ARGV[idx + 1]
  local want = ARGV[idx + 2]
  idx = idx + 3
  local current = redis.call("HGET", doc_key, field)
  if mode == "a" then
    if current and current ~= "" then
      return 0
    end
  else
    if current ~= want then
      return 0
    end
  end
end

local entries = {}
local entry_count = tonumber(ARGV[idx])
idx = idx + 1
for i = 1, entry_count do
  local e = {
    field = ARGV[idx],
    kind = ARGV[idx + 1],
    old = ARGV[idx + 2],
    old_pos = tonumber(ARGV[idx + 3]),
    new_pos = tonumber(ARGV[idx + 4]),
  }
  idx = idx + 5
  local current = redis.call("HGET", doc_key, e.field)
  if current == false then
    current = ""
  end
  if current ~= e.old then
    return -3
  end
  if e.kind == "u" and e.new_pos > 0 then
    local owner = redis.call("GET", KEYS[e.new_pos])
    if owner and owner ~= id then
      return -2
    end
  end
  entries[i] = e
end

for _, e in ipairs(entries) do
  if e.kind == "u" then
    if e.old_pos > 0 and redis.call("GET", KEYS[e.old_pos]) == id then
      redis.call("DEL", KEYS[e.old_pos])
    end
    if e.new_pos > 0 then
      redis.call("SET", KEYS[e.new_pos], id)
    end
  else
    if e.old_pos > 0 then
      redis.call("SREM", KEYS[e.old_pos], id)
    end
    if e.new_pos > 0 then
      redis.call("SADD", KEYS[e.new_pos], id)
    end
  end
end

for i = idx, #ARGV, 2 do
  local field = ARGV[i]
  local value = ARGV[i + 1]
  if value == "" then
    redis.call("HDEL", doc_key, field)
  else
    redis.call("HSET", doc_key, field, value)
  end
end

return 1
`

var updateIfLua = redis.NewScript(updateIfScript)

// Store is a Redis-backed docstore.Store.
//
// Each document is a hash. Unique fields map value to id with a plain key;
// lookup fields keep a set of ids per value. Inserts and conditional updates
// run as Lua scripts so index checks and writes are atomic. Every key a
// script touches is declared, and all keys of one collection share a hash
// tag, so the store also runs against Redis Cluster.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	schema docstore.Schema
}

// NewStore creates a Store under the key namespace prefix. client may be a
// single node, sentinel or cluster client.
func NewStore(client redis.UniversalClient, prefix string, schema docstore.Schema) *Store {
	if prefix == "" {
		prefix = "gd"
	}
	return &Store{redis: client, prefix: prefix, schema: schema}
}

// collectionPrefix hash-tags the collection so its documents and indexes
// land in one cluster slot.
func (s *Store) collectionPrefix(collection string) string {
	return s.prefix + ":{" + collection + "}:"
}

func (s *Store) docKey(collection, id string) string {
	return s.collectionPrefix(collection) + "doc:" + id
}

func (s *Store) idsKey(collection string) string {
	return s.collectionPrefix(collection) + "ids"
}

func (s *Store) uniqueKey(collection, field, value string) string {
	return s.collectionPrefix(collection) + "u:" + field + ":" + value
}

func (s *Store) lookupKey(collection, field, value string) string {
	return s.collectionPrefix(collection) + "l:" + field + ":" + value
}

func (s *Store) isUnique(collection, field string) bool {
	for _, f := range s.schema[collection].Unique {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Store) isLookup(collection, field string) bool {
	for _, f := range s.schema[collection].Lookup {
		if f == field {
			return true
		}
	}
	return false
}

// Insert implements docstore.Store.
func (s *Store) Insert(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id, err := docstore.NewID()
	if err != nil {
		return "", err
	}

	idx := s.schema[collection]
	keys := []string{s.docKey(collection, id), s.idsKey(collection)}
	for _, f := range idx.Unique {
		if v := fields[f]; v != "" {
			keys = append(keys, s.uniqueKey(collection, f, v))
		}
	}
	uniqueCount := len(keys) - 2
	for _, f := range idx.Lookup {
		if v := fields[f]; v != "" {
			keys = append(keys, s.lookupKey(collection, f, v))
		}
	}

	args := []interface{}{id, uniqueCount}
	for _, f := range sortedFields(fields) {
		if v := fields[f]; v != "" {
			args = append(args, f, v)
		}
	}

	res, err := insertLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return "", fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	if res == 0 {
		return "", docstore.ErrDuplicate
	}

	return id, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if id == "" {
		return docstore.Document{}, docstore.ErrNotFound
	}

	values, err := s.redis.HGetAll(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	if len(values) == 0 {
		return docstore.Document{}, docstore.ErrNotFound
	}

	return docstore.Document{ID: id, Fields: docstore.Fields(values)}, nil
}

// FindOne implements docstore.Store. Lookup fields resolve to the oldest
// matching document.
func (s *Store) FindOne(ctx context.Context, collection, field, value string) (docstore.Document, error) {
	if !s.schema.Indexed(collection, field) {
		return docstore.Document{}, fmt.Errorf("%w: %s.%s", docstore.ErrNotIndexed, collection, field)
	}
	if value == "" {
		return docstore.Document{}, docstore.ErrNotFound
	}

	if s.isUnique(collection, field) {
		id, err := s.redis.Get(ctx, s.uniqueKey(collection, field, value)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return docstore.Document{}, docstore.ErrNotFound
			}
			return docstore.Document{}, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
		}
		return s.Get(ctx, collection, id)
	}

	ids, err := s.redis.SMembers(ctx, s.lookupKey(collection, field, value)).Result()
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc, err := s.Get(ctx, collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		return doc, err
	}

	return docstore.Document{}, docstore.ErrNotFound
}

// maxStaleRetries bounds UpdateIf retries when an indexed field changes
// between the pre-read and the script.
const maxStaleRetries = 5

// UpdateIf implements docstore.Store.
func (s *Store) UpdateIf(
	ctx context.Context,
	collection, id string,
	conds []docstore.Condition,
	patch docstore.Fields,
) (bool, error) {
	if id == "" {
		return false, docstore.ErrNotFound
	}

	docKey := s.docKey(collection, id)
	var indexed []string
	for _, f := range sortedFields(patch) {
		if s.isUnique(collection, f) || s.isLookup(collection, f) {
			indexed = append(indexed, f)
		}
	}

	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		current := make([]string, len(indexed))
		if len(indexed) > 0 {
			vals, err := s.redis.HMGet(ctx, docKey, indexed...).Result()
			if err != nil {
				return false, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
			}
			for i, v := range vals {
				if str, ok := v.(string); ok {
					current[i] = str
				}
			}
		}

		keys, args := s.updateArgs(collection, id, docKey, conds, patch, indexed, current)
		res, err := updateIfLua.Run(ctx, s.redis, keys, args...).Int64()
		if err != nil {
			return false, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
		}

		switch res {
		case updateApplied:
			return true, nil
		case updateRejected:
			return false, nil
		case updateNotFound:
			return false, docstore.ErrNotFound
		case updateDuplicate:
			return false, docstore.ErrDuplicate
		case updateStale:
			continue
		default:
			return false, fmt.Errorf("%w: unexpected update status %s", docstore.ErrUnavailable, strconv.FormatInt(res, 10))
		}
	}

	return false, fmt.Errorf("%w: %s/%s kept changing during update", docstore.ErrUnavailable, collection, id)
}

// updateArgs lays out KEYS and ARGV for updateIfScript. current holds the
// pre-read values of the indexed patch fields.
func (s *Store) updateArgs(
	collection, id, docKey string,
	conds []docstore.Condition,
	patch docstore.Fields,
	indexed, current []string,
) ([]string, []interface{}) {
	keys := []string{docKey}
	args := make([]interface{}, 0, 3+3*len(conds)+5*len(indexed)+2*len(patch))
	args = append(args, id, len(conds))
	for _, c := range conds {
		mode := "e"
		if c.Absent {
			mode = "a"
		}
		args = append(args, c.Field, mode, c.Value)
	}

	// position appends key and returns its 1-based KEYS index, 0 for no key.
	position := func(key string, present bool) int {
		if !present {
			return 0
		}
		keys = append(keys, key)
		return len(keys)
	}

	entries := 0
	entryArgs := make([]interface{}, 0, 5*len(indexed))
	for i, f := range indexed {
		old, next := current[i], patch[f]
		if old == next {
			continue
		}
		kind, keyFor := "l", s.lookupKey
		if s.isUnique(collection, f) {
			kind, keyFor = "u", s.uniqueKey
		}
		oldPos := position(keyFor(collection, f, old), old != "")
		newPos := position(keyFor(collection, f, next), next != "")
		entryArgs = append(entryArgs, f, kind, old, oldPos, newPos)
		entries++
	}
	args = append(args, entries)
	args = append(args, entryArgs...)

	for _, f := range sortedFields(patch) {
		args = append(args, f, patch[f])
	}
	return keys, args
}

// List implements docstore.Store. Documents are returned in id order, which
// for time-ordered ids is creation order.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	ids, err := s.redis.SMembers(ctx, s.idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}

	docs := make([]docstore.Document, 0, len(ids))
	for i, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue
		}
		docs = append(docs, docstore.Document{ID: ids[i], Fields: docstore.Fields(values)})
	}

	return docs, nil
}

// Ping checks connectivity for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return nil
}

func sortedFields(fields docstore.Fields) []string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}
