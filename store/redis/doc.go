// Package redis provides a Redis-backed store.MetadataStore.
//
// Each record is a JSON value in the hash "<prefix>papers", keyed by
// paper_id, and "<prefix>papers:order" lists paper_ids by first insertion.
// Upsert and Delete watch both keys and commit in MULTI/EXEC, retrying when
// another client wins the race, so concurrent writers never duplicate or
// lose an order entry.
//
// # Basic Usage
//
//	s := redis.NewRedisMetadataStore(redis.RedisOptions{
//		Addr:     "localhost:6379",
//		Password: "yourpassword",
//		DB:       0,
//		Prefix:   "paperrag:", // Optional key prefix
//	})
//	defer s.Close()
package redis
