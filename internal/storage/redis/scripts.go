package redis

const (
	// saveSessionScript writes a session record and indexes it by start time
	saveSessionScript = `
local session_key = KEYS[1]  -- rollcall:session:{id}
local index_key = KEYS[2]    -- rollcall:sessions

local session_id = ARGV[1]
local payload = ARGV[2]
local started_ms = ARGV[3]

redis.call('SET', session_key, payload)
redis.call('ZADD', index_key, started_ms, session_id)

return 'OK'
`

	// deleteSessionScript removes a session, its index entry and the current
	// pointer if it names the session. Returns 1 if the record existed.
	deleteSessionScript = `
local session_key = KEYS[1]  -- rollcall:session:{id}
local index_key = KEYS[2]    -- rollcall:sessions
local current_key = KEYS[3]  -- rollcall:current

local session_id = ARGV[1]

local existed = redis.call('DEL', session_key)
redis.call('ZREM', index_key, session_id)

if redis.call('GET', current_key) == session_id then
  redis.call('DEL', current_key)
end

return existed
`

	// deleteBeforeScript removes every session that started strictly before
	// the cutoff and returns how many were removed
	deleteBeforeScript = `
local index_key = KEYS[1]    -- rollcall:sessions

local cutoff_ms = ARGV[1]
local session_prefix = ARGV[2]

local ids = redis.call('ZRANGEBYSCORE', index_key, '-inf', '(' .. cutoff_ms)
for _, id in ipairs(ids) do
  redis.call('DEL', session_prefix .. id)
  redis.call('ZREM', index_key, id)
end

return #ids
`

	// clearSessionsScript removes every indexed session, the index and the
	// current pointer
	clearSessionsScript = `
local index_key = KEYS[1]    -- rollcall:sessions
local current_key = KEYS[2]  -- rollcall:current

local session_prefix = ARGV[1]

local ids = redis.call('ZRANGE', index_key, 0, -1)
for _, id in ipairs(ids) do
  redis.call('DEL', session_prefix .. id)
end
redis.call('DEL', index_key, current_key)

return #ids
`
)
